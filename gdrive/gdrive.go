// Package gdrive implements the remote catalog on Google Drive: one root
// folder whose subfolders are collections of video files.
package gdrive

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/xpzouying/reels-autopost/catalog"
	"github.com/xpzouying/reels-autopost/pkg/downloader"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	pageSize       = 1000

	// RootCollectionName names the single collection used when the root
	// folder holds videos directly.
	RootCollectionName = "root"
)

// Client 列出并下载 Drive 文件夹中的视频
type Client struct {
	srv    *drive.Service
	rootID string
}

// NewClient 使用服务账号 JSON 密钥创建只读客户端
func NewClient(ctx context.Context, credentialsJSON []byte, rootID string) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, drive.DriveReadonlyScope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse drive credentials")
	}
	return NewClientWithOptions(ctx, rootID, option.WithCredentials(creds))
}

// NewClientWithOptions builds a client with explicit API options.
func NewClientWithOptions(ctx context.Context, rootID string, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(rootID) == "" {
		return nil, errors.New("drive root folder id is required")
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create drive service")
	}
	logrus.Infof("google drive client ready, root folder %s", rootID)
	return &Client{srv: srv, rootID: rootID}, nil
}

// ListCollections 返回根目录下的子文件夹。
// 没有子文件夹时把根目录本身作为唯一的合集。
func (c *Client) ListCollections(ctx context.Context) ([]catalog.Collection, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", escape(c.rootID), folderMimeType)

	var cols []catalog.Collection
	err := c.list(ctx, q, func(f *drive.File) {
		cols = append(cols, catalog.Collection{ID: f.Id, Name: f.Name})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list drive folders")
	}

	if len(cols) == 0 {
		logrus.Debugf("no subfolders under %s, using the root folder as a collection", c.rootID)
		return []catalog.Collection{{ID: c.rootID, Name: RootCollectionName}}, nil
	}

	logrus.Debugf("found %d collections in drive", len(cols))
	return cols, nil
}

// ListItems 返回合集中的文件（不含文件夹）
func (c *Client) ListItems(ctx context.Context, collectionID string) ([]catalog.Item, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", escape(collectionID), folderMimeType)

	var items []catalog.Item
	err := c.list(ctx, q, func(f *drive.File) {
		items = append(items, catalog.Item{ID: f.Id, Name: f.Name, Size: f.Size, MimeType: f.MimeType})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list files of %s", collectionID)
	}
	return items, nil
}

// Download 将条目内容写入 dest
func (c *Client) Download(ctx context.Context, item catalog.Item, dest string, progress catalog.ProgressFunc) error {
	logrus.Infof("downloading %s (%s)", item.Name, item.ID)

	resp, err := c.srv.Files.Get(item.ID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return errors.Wrapf(err, "failed to request %s", item.Name)
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total <= 0 {
		total = item.Size
	}

	n, err := downloader.SaveVideo(resp.Body, dest, total, downloader.ProgressFunc(progress))
	if err != nil {
		return errors.Wrapf(err, "failed to download %s", item.Name)
	}

	logrus.Infof("downloaded %s (%.1f MB)", item.Name, float64(n)/(1024*1024))
	return nil
}

func (c *Client) list(ctx context.Context, q string, fn func(*drive.File)) error {
	call := c.srv.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, mimeType, size)").
		OrderBy("name").
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	return call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			fn(f)
		}
		return nil
	})
}

// escape quotes a value for a Drive query string literal.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
