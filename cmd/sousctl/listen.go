package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// Frames are sent every 100ms to simulate a live microphone.
const frameIntervalMs = 100

var (
	listenUser   string
	listenRecipe string
	audioFile    string
	linger       time.Duration
)

var listenCmd = &cobra.Command{
	Use:     "listen",
	Short:   "Stream a WAV file into a voice session and print the conversation",
	Example: `  sousctl listen --user 7 --recipe 42 --audio question-16khz.wav`,
	RunE:    runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenUser, "user", "", "User ID")
	listenCmd.Flags().StringVar(&listenRecipe, "recipe", "", "Recipe ID")
	listenCmd.Flags().StringVar(&audioFile, "audio", "", "Path to WAV file (16kHz 16-bit mono)")
	listenCmd.Flags().DurationVar(&linger, "linger", 10*time.Second, "How long to wait for replies after the audio ends")
	_ = listenCmd.MarkFlagRequired("user")
	_ = listenCmd.MarkFlagRequired("recipe")
	_ = listenCmd.MarkFlagRequired("audio")
	rootCmd.AddCommand(listenCmd)
}

func listenURL(base, user, recipe string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/listen/" + url.PathEscape(user) + "/" + url.PathEscape(recipe)
	return u.String(), nil
}

func runListen(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	f, err := os.Open(audioFile)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	format, err := readWAVHeader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", audioFile, err)
	}
	if format.SampleRate != 16000 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: sample rate is %d Hz, the agent expects 16000 Hz\n", format.SampleRate)
	}

	target, err := listenURL(serverURL, listenUser, listenRecipe)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()
	fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", target)

	// Print every conversation message until the server hangs up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				fmt.Fprintln(out, string(data))
			}
		}
	}()

	frame := make([]byte, format.bytesPer(frameIntervalMs))
	var sent, total int
	for {
		n, err := io.ReadFull(f, frame)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, frame[:n]); werr != nil {
				return fmt.Errorf("send audio: %w", werr)
			}
			sent++
			total += n
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		time.Sleep(frameIntervalMs * time.Millisecond)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "sent %d frames (%d bytes), waiting %v for replies\n", sent, total, linger)

	select {
	case <-done:
	case <-time.After(linger):
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}
