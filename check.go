package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xpzouying/reels-autopost/catalog"
	"github.com/xpzouying/reels-autopost/configs"
	"github.com/xpzouying/reels-autopost/credentials"
	"github.com/xpzouying/reels-autopost/gdrive"
	"github.com/xpzouying/reels-autopost/instagram"
	"github.com/xpzouying/reels-autopost/media"
)

// check is one connectivity diagnostic.
type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check ffmpeg, Google Drive and Instagram Graph API access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), timeout)
			defer cancel()
			return runChecks(ctx, cmd.OutOrStdout(), diagnostics(opts.cfg))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	return cmd
}

// runChecks 依次执行所有检查，返回失败数量
func runChecks(ctx context.Context, w io.Writer, checks []check) error {
	failed := 0
	for _, c := range checks {
		detail, err := c.run(ctx)
		if err != nil {
			failed++
			fmt.Fprintf(w, "✗ %s: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(w, "✓ %s: %s\n", c.name, detail)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func diagnostics(cfg configs.Config) []check {
	var (
		drive *gdrive.Client
		ig    *instagram.Client
	)

	return []check{
		{
			name: "ffmpeg",
			run: func(ctx context.Context) (string, error) {
				if err := media.New(cfg.FFmpegPath, cfg.FFprobePath).CheckTools(); err != nil {
					return "", err
				}
				return cfg.FFmpegPath + ", " + cfg.FFprobePath, nil
			},
		},
		{
			name: "google drive",
			run: func(ctx context.Context) (string, error) {
				if cfg.DriveFolderID == "" {
					return "", &configs.ConfigError{Field: "drive_folder_id", Reason: "is required (GDRIVE_FOLDER_ID)"}
				}
				data, err := credentials.Drive(cfg.DriveCredentialsFile).Load()
				if err != nil {
					return "", err
				}
				drive, err = gdrive.NewClient(ctx, data, cfg.DriveFolderID)
				if err != nil {
					return "", err
				}
				cols, err := drive.ListCollections(ctx)
				if err != nil {
					return "", err
				}
				catalog.SortCollections(cols)
				items, err := drive.ListItems(ctx, cols[0].ID)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d collection(s), %d video(s) in %s",
					len(cols), len(catalog.FilterVideos(items)), cols[0].Name), nil
			},
		},
		{
			name: "graph token",
			run: func(ctx context.Context) (string, error) {
				token, err := credentials.LoadString(credentials.Token(cfg.InstagramTokenFile))
				if err != nil {
					return "", err
				}
				ig, err = instagram.NewClient(instagram.Config{
					AccessToken: token,
					UserID:      cfg.InstagramUserID,
					GraphURL:    cfg.GraphURL,
					UploadURL:   cfg.UploadURL,
				})
				if err != nil {
					return "", err
				}
				me, err := ig.Me(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("token owner %s (%s)", me.Name, me.ID), nil
			},
		},
		{
			name: "graph permissions",
			run: func(ctx context.Context) (string, error) {
				if ig == nil {
					return "", errors.New("skipped, no valid token")
				}
				missing, err := ig.MissingPermissions(ctx)
				if err != nil {
					return "", err
				}
				if len(missing) > 0 {
					return "", errors.Errorf("missing %s", strings.Join(missing, ", "))
				}
				return strings.Join(instagram.RequiredPermissions, ", "), nil
			},
		},
		{
			name: "instagram account",
			run: func(ctx context.Context) (string, error) {
				if ig == nil {
					return "", errors.New("skipped, no valid token")
				}
				acc, err := ig.Verify(ctx)
				if err != nil {
					return "", err
				}
				return "@" + acc.Username, nil
			},
		},
	}
}
