package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms visible to you",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, api, err := adminClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestCtx()
		defer cancel()

		rooms, err := api.Rooms(ctx)
		if err != nil {
			return err
		}
		for _, room := range rooms {
			fmt.Printf("%-8s %s  (%s)\n", room.Kind, room.DisplayName(cfg.Nickname), room.ID)
		}
		return nil
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Moderation commands",
}

var (
	flagBanReason   string
	flagBanDuration int
)

var banCmd = &cobra.Command{
	Use:   "ban <username>",
	Short: "Ban a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, api, err := adminClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestCtx()
		defer cancel()

		if err := api.BanUser(ctx, args[0], flagBanReason, flagBanDuration); err != nil {
			return err
		}
		fmt.Printf("banned %s\n", args[0])
		return nil
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban <username>",
	Short: "Lift a ban",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, api, err := adminClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestCtx()
		defer cancel()

		if err := api.UnbanUser(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("unbanned %s\n", args[0])
		return nil
	},
}

var bannedCmd = &cobra.Command{
	Use:   "banned",
	Short: "List active bans",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, api, err := adminClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestCtx()
		defer cancel()

		bans, err := api.BannedUsers(ctx)
		if err != nil {
			return err
		}
		for _, ban := range bans {
			fmt.Printf("%-16s until %-20s by %-12s %s\n", ban.Username, ban.Until, ban.BannedBy, ban.Reason)
		}
		return nil
	},
}

func init() {
	banCmd.Flags().StringVar(&flagBanReason, "reason", "", "reason shown to the banned user")
	banCmd.Flags().IntVar(&flagBanDuration, "hours", -1, "ban duration in hours, -1 for permanent")
	_ = banCmd.MarkFlagRequired("reason")

	adminCmd.AddCommand(banCmd, unbanCmd, bannedCmd)
}

func adminClient() (config.Config, *rest.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	logger := log.New(cfg.LogLevel)
	api, err := rest.NewClient(cfg.ServerURL, cfg.Token, cfg.RequestTimeout, logger)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, api, nil
}

func requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
