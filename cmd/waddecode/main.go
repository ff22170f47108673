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

	wad "github.com/flga/wiiwad"
)

func run(path string, outDir string, stateFlag, localeFlag string, frame float64) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to open wad: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigchan
		cancel()
	}()

	log := wad.NewStdLogger()

	result, err := wad.DecodeWad(ctx, buf, log)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		log.Warn("%s", w)
	}

	opts := wad.DefaultOptions()
	if stateFlag != "" {
		opts.RenderStateMode = wad.RenderStateExplicit
		opts.RenderStateName = stateFlag
	}
	if localeFlag != "" {
		opts.LocaleMode = wad.LocaleExplicit
		opts.Locale = wad.Locale(localeFlag)
	}

	rl := result.Banner
	entries := result.BannerAnimEntries
	if rl == nil {
		rl = result.Icon
		entries = result.IconAnimEntries
	}

	scene := wad.EvaluateFrame(rl, entries, opts, float32(frame), log)
	log.Success("decoded %d draw items at frame %.1f", len(scene.Items), frame)

	if outDir == "" {
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("unable to create out dir: %s", err)
	}

	sceneJSON, err := json.MarshalIndent(scene, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal scene: %s", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "scene.json"), sceneJSON, 0o644); err != nil {
		return fmt.Errorf("unable to write scene.json: %s", err)
	}

	for i, tex := range result.Textures {
		name := filepath.Join(outDir, fmt.Sprintf("texture_%03d.rgba8", i))
		header := fmt.Sprintf("%d %d\n", tex.Width, tex.Height)
		if err := os.WriteFile(name, append([]byte(header), tex.Pixels...), 0o644); err != nil {
			return fmt.Errorf("unable to write %s: %s", name, err)
		}
	}

	log.Info("wrote %d texture(s) and scene.json to %s", len(result.Textures), outDir)
	return nil
}

func main() {
	if len(os.Args) < 2 || os.Args[1] != "decode" {
		fmt.Fprintln(os.Stderr, "usage: waddecode decode <input.wad> [--out <dir>] [--state RSO<N>] [--locale {JP|NE|GE|SP|IT|FR|US|KR}] [--frame <f>]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	out := fs.String("out", "", "directory to dump the resolved scene and decoded textures into")
	state := fs.String("state", "", "explicit render state, e.g. RSO1 (default: auto)")
	locale := fs.String("locale", "", "explicit locale filter (default: auto)")
	frame := fs.Float64("frame", 0, "absolute playback frame to evaluate")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "missing <input.wad>")
		os.Exit(1)
	}

	// flag stops at the first non-flag argument, so parse again after
	// <input.wad> to pick up flags written after it.
	input := fs.Arg(0)
	fs.Parse(fs.Args()[1:])

	if err := run(input, *out, *state, *locale, *frame); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var de *wad.DecodeError
	if errors.As(err, &de) {
		switch de.Kind {
		case wad.DecryptFailure:
			return 2
		case wad.NoRenderable:
			return 3
		default:
			return 1
		}
	}
	return 1
}
