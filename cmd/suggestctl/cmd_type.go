package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"studiofinder/suggestservice/internal/app"
	"studiofinder/suggestservice/internal/session"
)

var typeFlags struct {
	keystroke time.Duration
	settle    time.Duration
	mobile    bool
	radius    int
}

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "Simulate an input session from a script on stdin",
	Long: `Plays a script against one input session and prints every session event.

Plain lines are typed one character at a time. Lines starting with ':' are
actions: :enter :up :down :esc :outside :blur :search :select N :radius N
:wait DURATION.

$ printf 'sohi\n:down\n:enter\n' | suggestctl type --variant hero
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := app.LoadConfig()
		logger := newLogger(cmd.ErrOrStderr())
		redisClient := app.ConnectRedis(cfg, logger)
		if redisClient != nil {
			defer redisClient.Close()
		}
		service, placesClient := app.BuildSuggestService(cfg, logger, redisClient)

		location, err := flagLocation(cmd)
		if err != nil {
			return err
		}
		radius := typeFlags.radius
		if radius <= 0 {
			radius = cfg.DefaultRadiusMiles
		}
		sess := session.New(service, session.Config{
			Variant:      session.ParseVariant(suggestFlags.variant),
			Mobile:       typeFlags.mobile,
			RadiusMiles:  radius,
			UserLocation: location,
			Logger:       logger,
			Geocoder:     placesClient,
		})
		defer sess.Close()

		p := newPrinter(cmd.OutOrStdout())
		var mu sync.Mutex
		sess.Subscribe(func(event session.Event) {
			mu.Lock()
			defer mu.Unlock()
			_ = p.event(event)
		})

		player := scriptPlayer{session: sess, keystroke: typeFlags.keystroke, settle: typeFlags.settle}
		return player.play(ctx, cmd.InOrStdin())
	},
}

// scriptPlayer feeds script lines into a session.
type scriptPlayer struct {
	session   *session.Session
	keystroke time.Duration
	settle    time.Duration
}

func (sp scriptPlayer) play(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var err error
		if strings.HasPrefix(line, ":") {
			err = sp.action(ctx, line)
		} else {
			err = sp.typeText(ctx, line)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func (sp scriptPlayer) typeText(ctx context.Context, text string) error {
	typed := make([]rune, 0, len(text))
	for _, r := range text {
		typed = append(typed, r)
		sp.session.Input(string(typed))
		if err := sleep(ctx, sp.keystroke); err != nil {
			return err
		}
	}
	return sleep(ctx, sp.settle)
}

func (sp scriptPlayer) action(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "enter":
		sp.session.Enter()
	case "down":
		sp.session.MoveHighlight(1)
	case "up":
		sp.session.MoveHighlight(-1)
	case "esc", "escape":
		sp.session.Escape()
	case "outside":
		sp.session.OutsideClick()
	case "blur":
		sp.session.Blur(false)
	case "search":
		sp.session.SearchButton()
	case "select":
		index, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("select needs an index: %w", err)
		}
		sp.session.Select(index)
	case "radius":
		miles, err := strconv.Atoi(arg)
		if err != nil || miles <= 0 {
			return fmt.Errorf("radius needs a positive number of miles")
		}
		sp.session.SetRadius(miles)
		return sleep(ctx, sp.settle+session.RadiusDebounceMobile)
	case "wait":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return fmt.Errorf("wait needs a duration: %w", err)
		}
		return sleep(ctx, d)
	default:
		return fmt.Errorf("unknown action %q", name)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func init() {
	addLocationFlags(typeCmd)
	typeCmd.Flags().DurationVar(&typeFlags.keystroke, "keystroke", 60*time.Millisecond, "delay between typed characters")
	typeCmd.Flags().DurationVar(&typeFlags.settle, "settle", time.Second, "wait after each typed line")
	typeCmd.Flags().BoolVar(&typeFlags.mobile, "mobile", false, "use the mobile radius debounce")
	typeCmd.Flags().IntVar(&typeFlags.radius, "radius", 0, "initial radius in miles")
	rootCmd.AddCommand(typeCmd)
}
