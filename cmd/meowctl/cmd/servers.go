package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/meowchat/meowchat/webclient/internal/membership"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func parseServerID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid server id %q", arg)
	}
	return id, nil
}

func newMemberCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "member <server-id>",
		Short: "Check membership of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseServerID(args[0])
			if err != nil {
				return err
			}
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ok, err := rt.Membership.IsMember(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("membership check failed: %w", err)
			}
			if ok {
				pterm.Success.Printf("You are a member of server %d\n", id)
			} else {
				pterm.Info.Printf("You are not a member of server %d\n", id)
			}
			return nil
		},
	}
}

func newJoinCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "join <server-id>",
		Short: "Join a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseServerID(args[0])
			if err != nil {
				return err
			}
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Membership.JoinServer(cmd.Context(), id); err != nil {
				return err
			}
			pterm.Success.Printf("Joined server %d\n", id)
			return nil
		},
	}
}

func newLeaveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <server-id>",
		Short: "Leave a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseServerID(args[0])
			if err != nil {
				return err
			}
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			err = rt.Membership.LeaveServer(cmd.Context(), id)
			if errors.Is(err, membership.ErrDenied) {
				pterm.Warning.Println(err.Error())
				return err
			}
			if err != nil {
				return err
			}
			pterm.Success.Printf("Left server %d\n", id)
			return nil
		},
	}
}
