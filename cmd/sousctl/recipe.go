package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sous-voice-service/internal/models"
)

var (
	recipeID    int
	userID      int
	recipeFile  string
	parseURL    string
	condense    bool
	httpTimeout time.Duration
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Chunk and store a recipe for retrieval",
	Example: `  sousctl upload --recipe 42 --user 7 --file lasagna.txt
  cat lasagna.txt | sousctl upload --recipe 42 --user 7`,
	RunE: runUpload,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a stored recipe",
	RunE:  runDelete,
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract recipe text from a web page",
	Example: `  sousctl parse --url https://example.com/tomato-soup
  sousctl parse --url https://example.com/tomato-soup --condense`,
	RunE: runParse,
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, deleteCmd} {
		c.Flags().IntVar(&recipeID, "recipe", 0, "Recipe ID")
		c.Flags().IntVar(&userID, "user", 0, "User ID")
		_ = c.MarkFlagRequired("recipe")
		_ = c.MarkFlagRequired("user")
	}
	uploadCmd.Flags().StringVar(&recipeFile, "file", "-", "Recipe text file, - for stdin")

	parseCmd.Flags().StringVar(&parseURL, "url", "", "Recipe page URL")
	parseCmd.Flags().BoolVar(&condense, "condense", false, "Condense the page with the language model")
	_ = parseCmd.MarkFlagRequired("url")

	for _, c := range []*cobra.Command{uploadCmd, deleteCmd, parseCmd} {
		c.Flags().DurationVar(&httpTimeout, "timeout", 60*time.Second, "Request timeout")
		rootCmd.AddCommand(c)
	}
}

func runUpload(cmd *cobra.Command, _ []string) error {
	var r io.Reader = cmd.InOrStdin()
	if recipeFile != "-" {
		f, err := os.Open(recipeFile)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read recipe: %w", err)
	}

	msg, err := call(cmd.Context(), http.MethodPost, "/chroma-upload-recipe/", models.UploadRecipeRequest{
		RecipeID: recipeID,
		UserID:   userID,
		Text:     string(text),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runDelete(cmd *cobra.Command, _ []string) error {
	msg, err := call(cmd.Context(), http.MethodPost, "/chroma-delete-recipe/", models.DeleteRecipeRequest{
		RecipeID: recipeID,
		UserID:   userID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runParse(cmd *cobra.Command, _ []string) error {
	q := url.Values{"url": {parseURL}}
	if condense {
		q.Set("condense", "true")
	}
	msg, err := call(cmd.Context(), http.MethodGet, "/parse-recipe/?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

// call sends body as JSON and returns the "message" of the response, or the
// "error" as a Go error.
func call(ctx context.Context, method, path string, body any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(serverURL, "/")+path, payload)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return decodeReply(resp)
}

func decodeReply(resp *http.Response) (string, error) {
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("unexpected response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode >= 300 || out.Error != "" {
		return "", fmt.Errorf("%s: %s", resp.Status, out.Error)
	}
	return out.Message, nil
}
