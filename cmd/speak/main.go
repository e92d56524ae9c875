package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"acss/internal/config"
	"acss/internal/playback"
	"acss/pkg/tts"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	configPath  string
	text        string
	ssmlFile    string
	voice       string
	style       string
	format      string
	out         string
	play        bool
	visemes     bool
	trace       bool
	otlp        string
	otlpInsec   bool
	metricsAddr string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "speak",
		Short: "Synthesize speech over a streaming websocket session",
		Example: `  ACSS_KEY=... speak --text "Hello there" --out hello.wav
  speak --config acss.yaml --ssml-file greeting.xml --play --visemes`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, f, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML config file (environment variables with prefix "+config.EnvPrefix+" override it)")
	fl.StringVar(&f.text, "text", "", `text to synthesize, <style name="..."> tags switch the speaking style`)
	fl.StringVar(&f.ssmlFile, "ssml-file", "", "file with SSML markup to synthesize as is")
	fl.StringVar(&f.voice, "voice", "", "voice name, one of: "+strings.Join(tts.ListVoices(), ", "))
	fl.StringVar(&f.style, "style", "", "speaking style for --text")
	fl.StringVar(&f.format, "format", "", "output format, e.g. raw-24khz-16bit-mono-pcm")
	fl.StringVarP(&f.out, "out", "o", "", "write audio to this file (.wav is wrapped for PCM formats)")
	fl.BoolVar(&f.play, "play", false, "play the audio while it streams")
	fl.BoolVar(&f.visemes, "visemes", false, "request viseme events and print them")
	fl.BoolVar(&f.trace, "trace", false, "print trace spans to stderr")
	fl.StringVar(&f.otlp, "otlp-endpoint", "", "export trace spans to this OTLP gRPC collector instead of stderr")
	fl.BoolVar(&f.otlpInsec, "otlp-insecure", false, "disable TLS for --otlp-endpoint")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running, e.g. :9464")
	cmd.MarkFlagsMutuallyExclusive("text", "ssml-file")
	cmd.MarkFlagsOneRequired("text", "ssml-file")

	return cmd
}

func run(ctx context.Context, f flags, stdout, stderr io.Writer) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.voice != "" {
		cfg.Voice = f.voice
	}
	if f.format != "" {
		cfg.Format = f.format
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger.SetOutput(stderr)

	tel := telemetryConfig{OTLPEndpoint: f.otlp, OTLPInsecure: f.otlpInsec, MetricsAddr: f.metricsAddr}
	if f.trace {
		tel.TraceOut = stderr
	}
	if tel.enabled() {
		shutdown, err := setupTelemetry(tel, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warnf("speak: shutdown telemetry: %v", err)
			}
		}()
	}

	format, err := cfg.AudioFormat()
	if err != nil {
		return err
	}
	if f.play && !format.IsPCM() {
		return fmt.Errorf("--play needs a raw PCM format, got %s", format.Name)
	}

	ssml, err := loadSSML(cfg, f)
	if err != nil {
		return err
	}

	session, err := tts.Connect(ctx, cfg.URL(), cfg.Key, cfg.SessionOptions(logger)...)
	if err != nil {
		return err
	}
	defer session.Close()

	stream, err := session.Synthesize(ctx, tts.Request{
		SSML:               ssml,
		Format:             format,
		Visemes:            f.visemes,
		WordBoundaries:     true,
		SentenceBoundaries: f.visemes,
	})
	if err != nil {
		return err
	}
	defer stream.Close()
	logger.WithField("request_id", stream.RequestID()).Infof("speak: synthesizing with %s", format.Name)

	var audio bytes.Buffer
	onEvent := func(ev tts.Event) {
		switch ev := ev.(type) {
		case tts.AudioChunk:
			if f.out != "" {
				audio.Write(ev.Data)
			}
		case tts.Viseme:
			if f.visemes {
				fmt.Fprintf(stdout, "viseme %2d at %v (%d animation frames)\n", ev.ID, ev.Offset, len(ev.Animation))
			}
		case tts.WordBoundary:
			if f.visemes {
				fmt.Fprintf(stdout, "word %q at %v for %v\n", ev.Text, ev.Offset, ev.Duration)
			}
		case tts.SentenceBoundary:
			if f.visemes {
				fmt.Fprintf(stdout, "sentence %q at %v\n", ev.Text, ev.Offset)
			}
		}
	}

	// 只有播放时才需要 streamer，否则音频只进 audio
	var (
		speaker  *playback.Speaker
		streamer *playback.Streamer
	)
	if f.play {
		speaker, err = playback.NewSpeaker(beep.SampleRate(format.SampleRate))
		if err != nil {
			return err
		}
		defer speaker.Close()
		streamer = speaker.NewStreamer(format.Channels)
		speaker.Play(streamer)
	}

	g, gctx := errgroup.WithContext(ctx)
	pumped := make(chan struct{})
	g.Go(func() error {
		defer close(pumped)
		return playback.Pump(gctx, stream, streamer, onEvent)
	})
	if speaker != nil {
		g.Go(func() error {
			return reportProgress(gctx, speaker, pumped, stderr)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if f.out != "" {
		if err := writeAudio(f.out, format, audio.Bytes()); err != nil {
			return err
		}
		logger.Infof("speak: wrote %d bytes of %s audio to %s", audio.Len(), format.Name, f.out)
	}
	return nil
}

func loadSSML(cfg config.Config, f flags) (string, error) {
	if f.ssmlFile != "" {
		data, err := os.ReadFile(f.ssmlFile)
		if err != nil {
			return "", fmt.Errorf("read ssml: %w", err)
		}
		return string(data), nil
	}

	voice, ok := tts.GetVoice(cfg.Voice)
	if !ok {
		return "", fmt.Errorf("unknown voice %q, available voices: %v", cfg.Voice, tts.ListVoices())
	}
	return buildSSML(voice, f.style, f.text)
}

// reportProgress 打印播放进度，直到音频全部到达且播放完
func reportProgress(ctx context.Context, speaker *playback.Speaker, pumped <-chan struct{}, w io.Writer) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	done := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pumped:
			done = true
			pumped = nil
		case <-ticker.C:
			p := speaker.Progress()
			fmt.Fprintf(w, "\r%5.1f%% %v / %v  %s", p.Percentage, p.Current.Truncate(time.Millisecond), p.Total.Truncate(time.Millisecond), lastWords(p.PlayedText, 6))
			if done && p.Current >= p.Total {
				fmt.Fprintln(w)
				return nil
			}
		}
	}
}

func lastWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func writeAudio(path string, format tts.AudioFormat, data []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer file.Close()

	if !format.IsPCM() || !strings.EqualFold(filepath.Ext(path), ".wav") {
		_, err = file.Write(data)
		return err
	}

	streamer := playback.NewStreamer(beep.SampleRate(format.SampleRate), format.Channels)
	streamer.AppendAudio(data)
	if err := streamer.Close(); err != nil {
		return err
	}
	if err := wav.Encode(file, streamer, streamer.Format()); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}
