package executor

import (
	"context"
	"fmt"

	"revstats/internal/logging"

	"github.com/tidwall/gjson"
)

// PageFunc fetches the items of one page. With limit 0 the request is sent
// without paging parameters.
type PageFunc func(ctx context.Context, limit, offset int) ([]gjson.Result, error)

// PagingConfig controls offset pagination.
type PagingConfig struct {
	PageSize int    // items per page; 0 disables paging
	MaxPages int    // 0 means no cap
	IDPath   string // gjson path identifying an item, used to detect repeated pages
}

// CollectOffsetPages walks limit/offset pages and returns the unique items in
// the order they were first seen. It stops on a short page, on a page that
// adds no unseen ids, or after MaxPages pages.
func CollectOffsetPages(ctx context.Context, cfg PagingConfig, fetch PageFunc) ([]gjson.Result, error) {
	if cfg.PageSize <= 0 {
		items, err := fetch(ctx, 0, 0)
		if err != nil {
			return nil, err
		}
		return items, nil
	}

	var all []gjson.Result
	seen := make(map[string]struct{})
	offset := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		logging.Logf(logging.Debug, "Pagination: fetching page %d (limit=%d offset=%d)", page, cfg.PageSize, offset)
		items, err := fetch(ctx, cfg.PageSize, offset)
		if err != nil {
			return all, fmt.Errorf("failed to fetch page %d (offset %d): %w", page, offset, err)
		}

		added := 0
		for _, item := range items {
			key := item.Raw
			if cfg.IDPath != "" {
				if id := item.Get(cfg.IDPath); id.Exists() {
					key = id.String()
				}
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, item)
			added++
		}
		logging.Logf(logging.Debug, "Pagination: page %d returned %d items, %d new", page, len(items), added)

		switch {
		case len(items) < cfg.PageSize:
			logging.Logf(logging.Debug, "Pagination: short page, stopping")
			return all, nil
		case added == 0:
			logging.Logf(logging.Warning, "Pagination: page %d repeated earlier items, stopping", page)
			return all, nil
		case cfg.MaxPages > 0 && page >= cfg.MaxPages:
			logging.Logf(logging.Info, "Pagination: reached max pages (%d), stopping", cfg.MaxPages)
			return all, nil
		}
		offset += len(items)
	}
}
