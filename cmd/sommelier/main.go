package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sommelier "github.com/menta2k/wine-sommelier"
	"github.com/menta2k/wine-sommelier/internal/config"
	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/capture"
	"github.com/menta2k/wine-sommelier/pkg/flow"
	"github.com/menta2k/wine-sommelier/pkg/render"
)

const usage = `usage: %s <command> [flags]

commands:
  analyze [-camera] [-yes] [-profile name] <image path or URL>
  show                 print the last saved recommendations
  probe                check that the analysis backend is reachable
  config [-init]       print the effective configuration, or write it to the default path
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.UseTextFormat()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var code int
	switch cmd {
	case "analyze":
		code = runAnalyze(ctx, cfg, args)
	case "show":
		code = runShow(ctx, cfg, args)
	case "probe":
		code = runProbe(ctx, cfg)
	case "config":
		code = runConfig(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		code = 2
	}
	os.Exit(code)
}

func runAnalyze(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	camera := fs.Bool("camera", false, "treat the image as a camera frame (stored as JPEG)")
	yes := fs.Bool("yes", false, "grant camera and library access without asking")
	profile := fs.String("profile", cfg.Analysis.Profile, "analysis profile: wine-image|image-file|inline-image|vision")
	color := fs.Bool("color", true, "color scores in the output")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "analyze needs exactly one image path or URL")
		return 2
	}
	cfg.Analysis.Profile = *profile

	var gate capture.PermissionGate = capture.NewPromptGate(os.Stdin, os.Stderr)
	if *yes {
		gate = capture.NewStaticGate(capture.Camera, capture.MediaLibrary)
	}

	session, err := sommelier.New(cfg, sommelier.WithPermissionGate(gate))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer session.Close()

	source := session.Library(capture.PathPicker(fs.Arg(0)))
	if *camera {
		source = session.Camera(capture.FileShutter{
			Path:      fs.Arg(0),
			Processor: capture.NewProcessor(cfg.Capture.MinImageSize),
		})
	}

	outcome, err := session.Run(ctx, source)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindPermissionDenied) {
			fmt.Fprintln(os.Stderr, "Permission required: allow access to take or choose a photo.")
			return 1
		}
		if errors.Is(err, capture.ErrCanceled) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Printf("%s\n%s\n", outcome.Notice.Title, outcome.Notice.Body)
	switch outcome.State {
	case flow.SucceededWineList:
		fmt.Println()
		if err := render.WriteCards(os.Stdout, outcome.Result.Wines, *color); err != nil {
			fmt.Fprintf(os.Stderr, "render: %v\n", err)
			return 1
		}
		return 0
	case flow.SucceededDescription:
		return 0
	case flow.Failed:
		return 3
	default:
		return 1
	}
}

func runShow(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	color := fs.Bool("color", true, "color scores in the output")
	asJSON := fs.Bool("json", false, "print the stored list as JSON")
	fs.Parse(args)

	session, err := sommelier.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer session.Close()

	wines := session.Recommendations(ctx)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(wines); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		return 0
	}
	if len(wines) == 0 {
		fmt.Println("No recommendations yet. Analyze a wine photo first.")
		return 0
	}
	if err := render.WriteCards(os.Stdout, wines, *color); err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		return 1
	}
	return 0
}

func runProbe(ctx context.Context, cfg *config.Config) int {
	session, err := sommelier.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer session.Close()

	if err := session.Probe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s unreachable: %v\n", cfg.BaseURL(), err)
		return 3
	}
	fmt.Printf("%s is healthy\n", cfg.BaseURL())
	return 0
}

func runConfig(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	initFile := fs.Bool("init", false, "write the configuration to "+config.GetConfigPath())
	fs.Parse(args)

	if *initFile {
		if err := cfg.SaveToFile(config.GetConfigPath()); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		fmt.Printf("Configuration written to %s\n", config.GetConfigPath())
		return 0
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
