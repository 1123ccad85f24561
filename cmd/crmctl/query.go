package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	pb "github.com/crmkit/crm_services/api/rpc/userstats"
	core "github.com/crmkit/crm_services/internal/core_domain"
)

type queryFlags struct {
	raw         string
	createdFrom string
	createdTo   string
	visitedFrom string
	visitedTo   string
	started     []uint
	finished    []uint
	viewed      []uint
	recent      []uint
}

func (f *queryFlags) filter() (core.StructuredFilter, error) {
	filter := core.StructuredFilter{}
	for _, tr := range []struct {
		field    string
		from, to string
	}{
		{"created_at", f.createdFrom, f.createdTo},
		{"last_visited_at", f.visitedFrom, f.visitedTo},
	} {
		var r core.TimeRange
		var err error
		if r.Lower, err = parseBound(tr.from); err != nil {
			return filter, err
		}
		if r.Upper, err = parseBound(tr.to); err != nil {
			return filter, err
		}
		if !r.IsUnbounded() {
			filter = filter.WithTimestamp(tr.field, r)
		}
	}
	for _, ids := range []struct {
		field string
		ids   []uint
	}{
		{core.CategoryStartedButNotFinished, f.started},
		{core.CategoryFinished, f.finished},
		{core.CategoryViewedButNotStarted, f.viewed},
		{core.CategoryRecentWatched, f.recent},
	} {
		if len(ids.ids) == 0 {
			continue
		}
		vals := make([]uint32, len(ids.ids))
		for i, v := range ids.ids {
			vals[i] = uint32(v)
		}
		filter = filter.WithIDs(ids.field, vals...)
	}
	return filter, nil
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want RFC 3339", s)
	}
	return &t, nil
}

func newQueryCmd(a *app) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the users a filter or raw SQL statement selects, one JSON object per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := a.dial(cmd.Context(), "user_stats_service", a.cfg.UserStatsGRPCClientTarget)
			if err != nil {
				return err
			}
			defer conn.Close()
			client := pb.NewUserStatsClient(conn)

			var rx pb.RecordReceiver
			if f.raw != "" {
				rx, err = client.RawQuery(cmd.Context(), &pb.RawQueryRequest{Query: f.raw})
			} else {
				var filter core.StructuredFilter
				if filter, err = f.filter(); err != nil {
					return err
				}
				rx, err = client.Query(cmd.Context(), &pb.QueryRequest{Filter: filter})
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				rec, err := rx.Recv()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&f.raw, "raw", "", "raw SQL statement; other filter flags are ignored")
	cmd.Flags().StringVar(&f.createdFrom, "created-from", "", "created_at lower bound (RFC 3339)")
	cmd.Flags().StringVar(&f.createdTo, "created-to", "", "created_at upper bound (RFC 3339)")
	cmd.Flags().StringVar(&f.visitedFrom, "visited-from", "", "last_visited_at lower bound (RFC 3339)")
	cmd.Flags().StringVar(&f.visitedTo, "visited-to", "", "last_visited_at upper bound (RFC 3339)")
	cmd.Flags().UintSliceVar(&f.started, "started", nil, "content ids the user started but did not finish")
	cmd.Flags().UintSliceVar(&f.finished, "finished", nil, "content ids the user finished")
	cmd.Flags().UintSliceVar(&f.viewed, "viewed", nil, "content ids the user viewed but did not start")
	cmd.Flags().UintSliceVar(&f.recent, "recent", nil, "content ids the user watched recently")
	return cmd
}
