package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/podium/internal/api"
	"github.com/kalambet/podium/internal/config"
	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/importer"
	"github.com/kalambet/podium/internal/presentation"
	"github.com/kalambet/podium/internal/storage"
)

// --- presentation ---

var presentationCmd = &cobra.Command{
	Use:     "presentation",
	Aliases: []string{"p"},
	Short:   "Manage presentations",
}

// draftFlags are the content sources accepted by "presentation create".
type draftFlags struct {
	draftFile   string
	title       string
	description string
	context     string
	contentFile string
	fromURL     string
	fromPDF     string
	noFeedback  bool
	hideLive    bool
}

func readDraftFlags(cmd *cobra.Command) draftFlags {
	var f draftFlags
	f.draftFile, _ = cmd.Flags().GetString("draft")
	f.title, _ = cmd.Flags().GetString("title")
	f.description, _ = cmd.Flags().GetString("description")
	f.context, _ = cmd.Flags().GetString("context")
	f.contentFile, _ = cmd.Flags().GetString("content-file")
	f.fromURL, _ = cmd.Flags().GetString("from-url")
	f.fromPDF, _ = cmd.Flags().GetString("from-pdf")
	f.noFeedback, _ = cmd.Flags().GetBool("no-feedback")
	f.hideLive, _ = cmd.Flags().GetBool("hide-live")
	return f
}

// buildDraft assembles a draft from a YAML/JSON draft file and flags. Flags
// win over the file; imported documents fill the content and, when no title
// was given, the title.
func buildDraft(ctx context.Context, f draftFlags, client *http.Client) (presentation.Draft, error) {
	var d presentation.Draft
	if f.draftFile != "" {
		data, err := os.ReadFile(f.draftFile)
		if err != nil {
			return d, fmt.Errorf("reading draft file: %w", err)
		}
		// YAML is a superset of JSON, so one decoder covers both.
		if err := yaml.Unmarshal(data, &d); err != nil {
			return d, fmt.Errorf("parsing draft file: %w", err)
		}
	}

	sources := 0
	for _, s := range []string{f.contentFile, f.fromURL, f.fromPDF} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return d, fmt.Errorf("only one of --content-file, --from-url, or --from-pdf may be given")
	}

	var doc importer.Document
	switch {
	case f.contentFile != "":
		data, err := os.ReadFile(f.contentFile)
		if err != nil {
			return d, fmt.Errorf("reading content file: %w", err)
		}
		doc.Text = string(data)
	case f.fromURL != "":
		var err error
		if doc, err = importer.FetchURL(ctx, client, f.fromURL); err != nil {
			return d, fmt.Errorf("importing %s: %w", f.fromURL, err)
		}
	case f.fromPDF != "":
		data, err := os.ReadFile(f.fromPDF)
		if err != nil {
			return d, fmt.Errorf("reading pdf: %w", err)
		}
		if doc, err = importer.FromPDF(data); err != nil {
			return d, fmt.Errorf("importing %s: %w", f.fromPDF, err)
		}
	}
	if sources == 1 {
		d.Content = doc.Text
		if d.Title == "" {
			d.Title = doc.Title
		}
	}

	if f.title != "" {
		d.Title = f.title
	}
	if f.description != "" {
		d.Description = f.description
	}
	if f.context != "" {
		d.Context = f.context
	}
	if f.noFeedback {
		d.FeedbackDisabled = true
	}
	if f.hideLive {
		hidden := false
		d.LiveInfoVisible = &hidden
	}

	if strings.TrimSpace(d.Title) == "" {
		return d, fmt.Errorf("a title is required (use --title)")
	}
	return d, nil
}

var presentationCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a presentation",
	Long: `Create a presentation and generate its background section.

Examples:
  podium presentation create --title "Go at scale" --content-file talk.md
  podium presentation create --from-url https://example.com/talk
  podium presentation create --from-pdf slides.pdf --no-feedback
  podium presentation create --draft talk.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := buildDraft(ctx, readDraftFlags(cmd), &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(ctx, "/presentations", d)
		if err != nil {
			return err
		}
		var p storage.Presentation
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printSuccess("Created presentation %s", p.ID)
		printStatus("Access code", "%s", p.AccessCode)
		if p.StaticInfo == nil {
			printWarning("Background section not generated yet; run \"podium presentation static %s\"", p.ID)
		}
		return nil
	},
}

var presentationPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render the background section for a draft without saving it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := buildDraft(ctx, readDraftFlags(cmd), &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(ctx, "/preview", d)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Fprintln(stdout, result["static_info"])
		return nil
	},
}

var presentationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presentations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		owner, _ := cmd.Flags().GetString("owner")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", limit))
		if owner != "" {
			q.Set("owner", owner)
		}
		resp, err := client.get(cmd.Context(), "/presentations?"+q.Encode())
		if err != nil {
			return err
		}
		var list []storage.Presentation
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Fprintln(stdout, "No presentations found.")
			return nil
		}
		for _, p := range list {
			fmt.Fprintln(stdout, formatPresentationLine(p))
		}
		return nil
	},
}

func formatPresentationLine(p storage.Presentation) string {
	state := "idle"
	switch {
	case p.LastErrorMessage != nil:
		state = colorize(colorRed, "failing")
	case p.ProcessingScheduled:
		state = colorize(colorYellow, "scheduled")
	}
	return fmt.Sprintf("%s  %s  %-9s  %s",
		colorize(colorCyan, p.ID),
		p.AccessCode,
		state,
		truncate(p.Title, 60),
	)
}

var presentationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single presentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/presentations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(p)
	},
}

var presentationUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update presentation fields",
	Long: `Update presentation fields. Changing the title, description, context or
content regenerates the background section.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := updateFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/presentations/"+url.PathEscape(args[0]), u)
		if err != nil {
			return err
		}
		var p storage.Presentation
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printSuccess("Updated presentation %s", p.ID)
		return nil
	},
}

// updateFromFlags includes only the flags the user actually set.
func updateFromFlags(cmd *cobra.Command) (storage.PresentationUpdate, error) {
	var u storage.PresentationUpdate
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	u.Title = str("title")
	u.Description = str("description")
	u.Context = str("context")

	if path := str("content-file"); path != nil {
		data, err := os.ReadFile(*path)
		if err != nil {
			return u, fmt.Errorf("reading content file: %w", err)
		}
		content := string(data)
		u.Content = &content
	}
	if cmd.Flags().Changed("feedback") {
		v, _ := cmd.Flags().GetBool("feedback")
		disabled := !v
		u.FeedbackDisabled = &disabled
	}
	if cmd.Flags().Changed("live") {
		v, _ := cmd.Flags().GetBool("live")
		u.LiveInfoVisible = &v
	}

	if u == (storage.PresentationUpdate{}) {
		return u, fmt.Errorf("nothing to update")
	}
	return u, nil
}

var presentationDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a presentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/presentations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted presentation %s", args[0])
		return nil
	},
}

var presentationStaticCmd = &cobra.Command{
	Use:   "static <id>",
	Short: "Regenerate the background section of a presentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/presentations/"+url.PathEscape(args[0])+"/static", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Background section regenerated")
		fmt.Fprintln(stdout, result["static_info"])
		return nil
	},
}

var presentationImportCmd = &cobra.Command{
	Use:   "import <id>",
	Short: "Replace presentation content with a web page or PDF",
	Long: `Replace presentation content with text extracted on the server from a web
page or a local PDF file.

Examples:
  podium presentation import 3f2a --url https://example.com/talk
  podium presentation import 3f2a --pdf slides.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, _ := cmd.Flags().GetString("url")
		pdfPath, _ := cmd.Flags().GetString("pdf")

		var req api.ImportRequest
		switch {
		case rawURL != "" && pdfPath != "":
			return fmt.Errorf("only one of --url or --pdf may be given")
		case rawURL != "":
			req.URL = rawURL
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			if len(data) > importer.MaxBytes {
				return fmt.Errorf("pdf is larger than %d bytes", importer.MaxBytes)
			}
			req.PDF = base64.StdEncoding.EncodeToString(data)
		default:
			return fmt.Errorf("one of --url or --pdf is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/presentations/"+url.PathEscape(args[0])+"/import", req)
		if err != nil {
			return err
		}
		var p storage.Presentation
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printSuccess("Imported %d characters into %s", len([]rune(p.Content)), p.ID)
		return nil
	},
}

var presentationStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show feedback processing status of a presentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/presentations/"+url.PathEscape(args[0])+"/status")
		if err != nil {
			return err
		}
		var st feedback.ProcessingStatus
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printProcessingStatus(st)
		return nil
	},
}

func printProcessingStatus(st feedback.ProcessingStatus) {
	switch {
	case st.InFlight:
		printStatus("Processing", "running")
	case st.Scheduled && st.NextUpdate != nil:
		printStatus("Processing", "scheduled for %s", st.NextUpdate.Local().Format(time.TimeOnly))
	default:
		printStatus("Processing", "idle")
	}
	printStatus("Unprocessed", "%d", st.Unprocessed)
	if st.LastUpdated != nil {
		printStatus("Last updated", "%s", st.LastUpdated.Local().Format(time.DateTime))
	}
	if st.LastError != nil {
		printStatus("Last error", "%s", colorize(colorRed, *st.LastError))
	}
	if st.RetryAfter != nil {
		printStatus("Retry after", "%s", st.RetryAfter.Local().Format(time.TimeOnly))
	}
}

// exportDoc is a presentation in the shape "presentation create --draft"
// reads back, plus the generated sections.
type exportDoc struct {
	presentation.Draft `yaml:",inline"`

	ID          string     `json:"id" yaml:"id"`
	AccessCode  string     `json:"access_code" yaml:"access_code"`
	StaticInfo  *string    `json:"static_info,omitempty" yaml:"static_info,omitempty"`
	LiveInfo    *string    `json:"live_info,omitempty" yaml:"live_info,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

func newExportDoc(p storage.Presentation) exportDoc {
	visible := p.LiveInfoVisible
	return exportDoc{
		Draft: presentation.Draft{
			Title:            p.Title,
			Description:      p.Description,
			Context:          p.Context,
			Content:          p.Content,
			FeedbackDisabled: p.FeedbackDisabled,
			LiveInfoVisible:  &visible,
		},
		ID:          p.ID,
		AccessCode:  p.AccessCode,
		StaticInfo:  p.StaticInfo,
		LiveInfo:    p.FeedbackDigest,
		LastUpdated: p.LastUpdated,
	}
}

func writeExport(w io.Writer, p storage.Presentation, format string) error {
	doc := newExportDoc(p)
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

var presentationExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a presentation with its generated sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/presentations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p storage.Presentation
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		if output == "" {
			return writeExport(stdout, p, format)
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if err := writeExport(f, p, format); err != nil {
			return err
		}
		printSuccess("Presentation exported to %s", output)
		return nil
	},
}

func addDraftFlags(cmd *cobra.Command) {
	cmd.Flags().String("draft", "", "YAML or JSON draft file")
	cmd.Flags().String("title", "", "presentation title")
	cmd.Flags().String("description", "", "short description")
	cmd.Flags().String("context", "", "speaker notes and background for generation")
	cmd.Flags().String("content-file", "", "file with the main content")
	cmd.Flags().String("from-url", "", "import main content from a web page")
	cmd.Flags().String("from-pdf", "", "import main content from a PDF file")
	cmd.Flags().Bool("no-feedback", false, "disable audience feedback")
	cmd.Flags().Bool("hide-live", false, "hide the live section from the audience")
}

func init() {
	addDraftFlags(presentationCreateCmd)
	addDraftFlags(presentationPreviewCmd)

	presentationListCmd.Flags().Int("limit", 50, "maximum number of presentations to list")
	presentationListCmd.Flags().String("owner", "", "only list presentations of this owner")

	presentationUpdateCmd.Flags().String("title", "", "new title")
	presentationUpdateCmd.Flags().String("description", "", "new description")
	presentationUpdateCmd.Flags().String("context", "", "new context")
	presentationUpdateCmd.Flags().String("content-file", "", "file with the new main content")
	presentationUpdateCmd.Flags().Bool("feedback", true, "accept audience feedback")
	presentationUpdateCmd.Flags().Bool("live", true, "show the live section to the audience")

	presentationImportCmd.Flags().String("url", "", "web page to import")
	presentationImportCmd.Flags().String("pdf", "", "PDF file to import")

	presentationExportCmd.Flags().String("format", "yaml", "output format: json or yaml")
	presentationExportCmd.Flags().String("output", "", "output file path (default: stdout)")

	presentationCmd.AddCommand(presentationCreateCmd)
	presentationCmd.AddCommand(presentationPreviewCmd)
	presentationCmd.AddCommand(presentationListCmd)
	presentationCmd.AddCommand(presentationShowCmd)
	presentationCmd.AddCommand(presentationUpdateCmd)
	presentationCmd.AddCommand(presentationDeleteCmd)
	presentationCmd.AddCommand(presentationStaticCmd)
	presentationCmd.AddCommand(presentationImportCmd)
	presentationCmd.AddCommand(presentationStatusCmd)
	presentationCmd.AddCommand(presentationExportCmd)
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "List or submit audience feedback",
}

var feedbackListCmd = &cobra.Command{
	Use:   "list <presentation-id>",
	Short: "List feedback of a presentation, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/presentations/%s/feedback?limit=%d", url.PathEscape(args[0]), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var items []storage.Feedback
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Fprintln(stdout, "No feedback yet.")
			return nil
		}
		for _, fb := range items {
			fmt.Fprintln(stdout, formatFeedbackLine(fb))
		}
		return nil
	},
}

func formatFeedbackLine(fb storage.Feedback) string {
	mark := colorize(colorYellow, "•")
	if fb.ProcessedAt != nil {
		mark = colorize(colorGreen, "✓")
	}
	who := "anonymous"
	if fb.Participant != nil && *fb.Participant != "" {
		who = *fb.Participant
	}
	return fmt.Sprintf("%s %s  %-12s  %s",
		mark,
		fb.SubmittedAt.Local().Format(time.DateTime),
		truncate(who, 12),
		truncate(fb.Content, 80),
	)
}

var feedbackSubmitCmd = &cobra.Command{
	Use:   "submit <access-code> <text>",
	Short: "Submit feedback as an audience member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		body := map[string]string{"content": args[1]}
		if name != "" {
			body["participant"] = name
		}
		resp, err := client.post(cmd.Context(), "/p/"+url.PathEscape(args[0])+"/feedback", body)
		if err != nil {
			return err
		}
		var ack feedback.Ack
		if err := decodeJSON(resp, &ack); err != nil {
			return err
		}
		printSuccess("Feedback %s queued; next update at %s", ack.FeedbackID, ack.NextUpdate.Local().Format(time.TimeOnly))
		return nil
	},
}

func init() {
	feedbackListCmd.Flags().Int("limit", 50, "maximum number of items to list")
	feedbackSubmitCmd.Flags().String("name", "", "participant name")
	feedbackCmd.AddCommand(feedbackListCmd)
	feedbackCmd.AddCommand(feedbackSubmitCmd)
}

// --- retry / reset ---

var retryCmd = &cobra.Command{
	Use:   "retry <presentation-id>",
	Short: "Run a feedback processing pass now, ignoring backoff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/presentations/"+url.PathEscape(args[0])+"/retry", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		switch result["result"] {
		case "updated":
			printSuccess("Live section updated")
		case "idle":
			printSuccess("Nothing to process")
		case "conflict":
			printWarning("Presentation changed during the pass; another pass is scheduled")
		default:
			printWarning("Pass finished: %s", result["result"])
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <presentation-id>",
	Short: "Mark all feedback unprocessed and rebuild the live section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/presentations/"+url.PathEscape(args[0])+"/reset", nil)
		if err != nil {
			return err
		}
		var result struct {
			Status string `json:"status"`
			Items  int    `json:"items"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Reset %d feedback items; rebuild %s", result.Items, result.Status)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", ") + `.

API keys are not stored here; set PODIUM_OPENROUTER_API_KEY or
PODIUM_GEMINI_API_KEY, or put them in the platform secret store.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
