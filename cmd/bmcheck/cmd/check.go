package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"bmcheck.local/internal/app/existing"
	"bmcheck.local/internal/app/existing/cache"
	"bmcheck.local/internal/app/existing/pagemeta"
	"bmcheck.local/internal/app/existing/remote"
)

var (
	checkTitle        string
	checkFetchTitle   bool
	checkNoTitleCheck bool
	checkThreshold    int
	checkLimit        int
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a URL is already bookmarked",
	Long: `Look the URL up on the remote bookmark server. When no bookmark has the
same URL and a title is known, recent bookmarks are compared by title.

The resolution is printed as JSON. "ok": false means the server could not
be reached; treat it as "not bookmarked".

Examples:
  bmcheck check https://go.dev/blog/ --title "The Go Blog"
  bmcheck check https://go.dev/blog/ --fetch-title --threshold 80`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pageURL := args[0]

		title := checkTitle
		if title == "" && checkFetchTitle {
			t, err := pagemeta.NewFetcher(cfg.RemoteTimeout).FetchTitle(ctx, pageURL)
			if err != nil {
				// 拿不到标题只影响相似度查询，URL 查询照常进行
				slog.Warn("fetch page title failed", "url", pageURL, "err", err)
			}
			title = t
		}

		set := existing.Settings{
			EnableExistingCheck:             true,
			FuzzyURLMatch:                   cfg.FuzzyURLMatch,
			CacheEnabled:                    false, // 单次进程，缓存没有意义
			TitleSimilarityEnabled:          cfg.TitleSimilarityEnabled && !checkNoTitleCheck,
			TitleCheckLimit:                 cfg.TitleCheckLimit,
			TitleSimilarityThresholdPercent: cfg.TitleSimilarityThreshold,
		}
		if cmd.Flags().Changed("threshold") {
			set.TitleSimilarityThresholdPercent = checkThreshold
		}
		if cmd.Flags().Changed("limit") {
			set.TitleCheckLimit = checkLimit
		}

		c, err := cache.New[existing.Resolution](16)
		if err != nil {
			return err
		}
		defer c.Close()

		client := remote.NewClient(remote.Options{
			BaseURL:  cfg.RemoteBaseURL,
			APIToken: cfg.RemoteAPIToken,
			Timeout:  cfg.RemoteTimeout,
		})
		svc := existing.NewService(existing.StaticSettings(set), client, c)

		res, err := svc.Check(ctx, existing.LookupRequest{URL: pageURL, Title: title})
		if err != nil {
			return fmt.Errorf("check %s: %w", pageURL, err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkTitle, "title", "t", "", "page title used for similarity matching")
	checkCmd.Flags().BoolVar(&checkFetchTitle, "fetch-title", false, "download the page and use its title when --title is empty")
	checkCmd.Flags().BoolVar(&checkNoTitleCheck, "no-title-check", false, "only match by URL")
	checkCmd.Flags().IntVar(&checkThreshold, "threshold", existing.DefaultThresholdPercent, "title similarity threshold in percent (1-100)")
	checkCmd.Flags().IntVar(&checkLimit, "limit", existing.DefaultTitleCheckLimit, "number of recent bookmarks compared by title")
	rootCmd.AddCommand(checkCmd)
}
