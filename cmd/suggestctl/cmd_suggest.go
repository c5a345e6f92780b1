package main

import (
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"studiofinder/suggestservice/internal/app"
	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/session"
)

var suggestFlags struct {
	lat     float64
	lng     float64
	variant string
	noCache bool
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <query>",
	Short: "Run one fetch-and-rank cycle",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := app.LoadConfig()
		logger := newLogger(cmd.ErrOrStderr())
		redisClient := app.ConnectRedis(cfg, logger)
		if redisClient != nil {
			defer redisClient.Close()
		}
		service, _ := app.BuildSuggestService(cfg, logger, redisClient)

		location, err := flagLocation(cmd)
		if err != nil {
			return err
		}
		hero := session.ParseVariant(suggestFlags.variant) == session.VariantHero
		response, err := service.Suggest(ctx, domain.SuggestRequest{
			Query:          strings.Join(args, " "),
			UserLocation:   location,
			IncludeStudios: hero,
			BoostStudios:   hero,
			NoCache:        suggestFlags.noCache,
		})
		if err != nil {
			return err
		}
		return newPrinter(cmd.OutOrStdout()).suggestions(response)
	},
}

// flagLocation returns nil unless both --lat and --lng were given.
func flagLocation(cmd *cobra.Command) (*domain.UserLocation, error) {
	latSet := cmd.Flags().Changed("lat")
	lngSet := cmd.Flags().Changed("lng")
	if !latSet && !lngSet {
		return nil, nil
	}
	if latSet != lngSet {
		return nil, errors.New("--lat and --lng must be given together")
	}
	location := domain.UserLocation{Lat: suggestFlags.lat, Lng: suggestFlags.lng}
	if !location.Coordinates().Valid() {
		return nil, errors.New("coordinates out of range")
	}
	return &location, nil
}

func addLocationFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&suggestFlags.lat, "lat", 0, "user latitude for distance ranking")
	cmd.Flags().Float64Var(&suggestFlags.lng, "lng", 0, "user longitude for distance ranking")
	cmd.Flags().StringVar(&suggestFlags.variant, "variant", "filter", "input variant: hero or filter")
}

func init() {
	addLocationFlags(suggestCmd)
	suggestCmd.Flags().BoolVar(&suggestFlags.noCache, "nocache", false, "bypass the suggestion cache")
	rootCmd.AddCommand(suggestCmd)
}
