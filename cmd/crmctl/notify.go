package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	pb "github.com/crmkit/crm_services/api/rpc/crm"
	"github.com/crmkit/crm_services/internal/crm_service/auth"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

// notifyFlags are shared by welcome, recall and remind.
type notifyFlags struct {
	id       string
	days     uint32
	contents []uint
	token    string
}

func (f *notifyFlags) register(cmd *cobra.Command, daysFlag, daysHelp string, withContents bool) {
	cmd.Flags().StringVar(&f.id, "id", "", "correlation id (random when empty)")
	cmd.Flags().Uint32Var(&f.days, daysFlag, 0, daysHelp)
	if withContents {
		cmd.Flags().UintSliceVar(&f.contents, "content", nil, "content ids to include, comma separated")
	}
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("APP_CRM_TOKEN"), "bearer token (defaults to APP_CRM_TOKEN)")
}

func (f *notifyFlags) requestID() string {
	if f.id == "" {
		f.id = uuid.NewString()
	}
	return f.id
}

func (f *notifyFlags) contentIDs() []uint32 {
	out := make([]uint32, 0, len(f.contents))
	for _, c := range f.contents {
		out = append(out, uint32(c))
	}
	return out
}

// call dials the CRM service with f.token attached and runs fn.
func (a *app) call(cmd *cobra.Command, token string, fn func(pb.CRMClient, grpc.CallOption) (*domain.Response, error)) error {
	if token == "" {
		return fmt.Errorf("no bearer token: pass --token or set APP_CRM_TOKEN")
	}
	conn, err := a.dial(cmd.Context(), "crm_service", a.cfg.CRMGRPCClientTarget)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := fn(pb.NewCRMClient(conn), grpc.PerRPCCredentials(auth.BearerToken(token)))
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
}

func newWelcomeCmd(a *app) *cobra.Command {
	var f notifyFlags
	cmd := &cobra.Command{
		Use:   "welcome",
		Short: "Email users who signed up a given number of days ago",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := &domain.WelcomeRequest{ID: f.requestID(), Interval: f.days, ContentIDs: f.contentIDs()}
			return a.call(cmd, f.token, func(c pb.CRMClient, opt grpc.CallOption) (*domain.Response, error) {
				return c.Welcome(cmd.Context(), req, opt)
			})
		},
	}
	f.register(cmd, "interval", "days since sign-up", true)
	return cmd
}

func newRecallCmd(a *app) *cobra.Command {
	var f notifyFlags
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Email users active within the last days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := &domain.RecallRequest{ID: f.requestID(), LastVisitInterval: f.days, ContentIDs: f.contentIDs()}
			return a.call(cmd, f.token, func(c pb.CRMClient, opt grpc.CallOption) (*domain.Response, error) {
				return c.Recall(cmd.Context(), req, opt)
			})
		},
	}
	f.register(cmd, "last-visit", "look-back window in days", true)
	return cmd
}

func newRemindCmd(a *app) *cobra.Command {
	var f notifyFlags
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Email recently active users about contents they did not finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := &domain.RemindRequest{ID: f.requestID(), LastVisitInterval: f.days}
			return a.call(cmd, f.token, func(c pb.CRMClient, opt grpc.CallOption) (*domain.Response, error) {
				return c.Remind(cmd.Context(), req, opt)
			})
		},
	}
	f.register(cmd, "last-visit", "look-back window in days", false)
	return cmd
}
