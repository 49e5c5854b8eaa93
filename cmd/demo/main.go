// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/app"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/config"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/workflow"
)

const (
	consoleUserID  = "console_user"
	cliBoxMaxWidth = 90
)

// console drives the workflow in-process, one project at a time.
type console struct {
	in      *bufio.Scanner
	wf      *workflow.Workflow
	project *models.Project
	batch   *models.GenerationBatch
}

func main() {
	fmt.Println("Manthan console")
	fmt.Println("===============")

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logFile, err := os.CreateTemp("", "manthan-console-*.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{
		Version: "console",
		Logger:  utils.NewLogger(logFile, utils.DEBUG),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	fmt.Printf("store=%s use_model=%v engine=%s log=%s\n\n", cfg.StoreDriver, cfg.UseModel, cfg.DefaultEngine, logFile.Name())

	c := &console{in: bufio.NewScanner(os.Stdin), wf: a.Workflow}
	c.loop(ctx)
}

func (c *console) loop(ctx context.Context) {
	for {
		c.showMenu()
		choice, ok := c.prompt("> ")
		if !ok {
			return
		}

		var err error
		switch choice {
		case "1", "new":
			err = c.newProject(ctx)
		case "2", "open":
			err = c.openProject(ctx)
		case "3", "generate":
			err = c.generate(ctx)
		case "4", "choose":
			err = c.choose(ctx)
		case "5", "show":
			err = c.show(ctx)
		case "6", "pitch":
			err = c.pitch(ctx)
		case "0", "quit", "exit":
			fmt.Println("bye")
			return
		default:
			fmt.Println("unknown choice")
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
		fmt.Println()
	}
}

func (c *console) showMenu() {
	current := "(none)"
	if c.project != nil {
		current = fmt.Sprintf("%s [%s]", c.project.Title, c.project.Stage)
	}
	printBox("Project: "+current, strings.Join([]string{
		"1) new project",
		"2) open project",
		"3) generate candidates for the current stage",
		"4) choose a candidate",
		"5) show project",
		"6) pitch pack",
		"0) exit",
	}, "\n"))
}

// prompt reads one trimmed line. ok is false at end of input.
func (c *console) prompt(label string) (string, bool) {
	fmt.Print(label)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *console) promptWithDefault(label, defaultValue string) string {
	if defaultValue != "" {
		label = fmt.Sprintf("%s [%s]: ", label, defaultValue)
	} else {
		label += ": "
	}
	v, _ := c.prompt(label)
	if v == "" {
		return defaultValue
	}
	return v
}

func (c *console) newProject(ctx context.Context) error {
	in := models.ProjectInput{
		Title:   c.promptWithDefault("Title", "Dhundh"),
		Logline: c.promptWithDefault("Logline", "A detective hunts a ghost in Mumbai's monsoon"),
		Genre:   c.promptWithDefault("Genre", ""),
		Tone:    c.promptWithDefault("Tone", ""),
	}
	p, err := c.wf.CreateProject(ctx, consoleUserID, in)
	if err != nil {
		return err
	}
	c.project, c.batch = p, nil
	fmt.Printf("created %s, next stage: %s\n", p.ID, p.Stage)
	return nil
}

func (c *console) openProject(ctx context.Context) error {
	ps, err := c.wf.ListProjects(ctx, consoleUserID)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		fmt.Println("no projects yet")
		return nil
	}
	for i, p := range ps {
		fmt.Printf("  %d) %s [%s]\n", i+1, p.Title, p.Stage)
	}
	raw, _ := c.prompt("number: ")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(ps) {
		return fmt.Errorf("no project %q", raw)
	}
	c.project, c.batch = ps[n-1], nil
	return nil
}

func (c *console) requireProject() error {
	if c.project == nil {
		return fmt.Errorf("create or open a project first")
	}
	return nil
}

func (c *console) generate(ctx context.Context) error {
	if err := c.requireProject(); err != nil {
		return err
	}
	stage := c.project.Stage
	if stage == models.StageDone {
		stage = models.StageDone.Prev()
	}
	tweak := c.promptWithDefault("Steering note (optional)", "")

	batch, err := c.wf.RequestGeneration(ctx, workflow.GenerateRequest{
		ProjectID: c.project.ID,
		OwnerID:   consoleUserID,
		Stage:     stage,
		Tweak:     tweak,
	})
	if err != nil {
		return err
	}
	c.batch = batch
	for i, cand := range batch.Candidates {
		title := fmt.Sprintf("%d) %s  (%s", i+1, cand.Meta.Variant, cand.Meta.Source)
		if cand.Meta.FallbackReason != "" {
			title += ", " + cand.Meta.FallbackReason
		}
		printBox(title+")", truncateForCLI(cand.Text, 1200))
	}
	return nil
}

func (c *console) choose(ctx context.Context) error {
	if err := c.requireProject(); err != nil {
		return err
	}
	if c.batch == nil {
		return fmt.Errorf("generate candidates first")
	}
	raw, _ := c.prompt(fmt.Sprintf("candidate (1-%d): ", len(c.batch.Candidates)))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(c.batch.Candidates) {
		return fmt.Errorf("no candidate %q", raw)
	}
	edits := c.promptWithDefault("Replacement text (empty keeps the candidate)", "")

	result, err := c.wf.CommitChoice(ctx, workflow.ChooseRequest{
		ProjectID:   c.project.ID,
		OwnerID:     consoleUserID,
		Stage:       c.batch.Stage,
		CandidateID: c.batch.Candidates[n-1].ID,
		Edits:       edits,
	})
	if err != nil {
		return err
	}
	c.project, c.batch = result.Project, nil
	fmt.Printf("committed %s; quality %s (%d); now at %s\n",
		result.Artifact.Stage, result.Quality.Label, result.Quality.Score, result.Project.Stage)
	for _, s := range result.Quality.Suggestions {
		fmt.Printf("  - %s\n", s)
	}
	return nil
}

func (c *console) show(ctx context.Context) error {
	if err := c.requireProject(); err != nil {
		return err
	}
	p, err := c.wf.GetProject(ctx, consoleUserID, c.project.ID)
	if err != nil {
		return err
	}
	c.project = p
	for _, stage := range models.Stages() {
		if !p.HasArtifact(stage) {
			continue
		}
		printBox(string(stage), truncateForCLI(p.ArtifactText(stage), 800))
	}
	fmt.Printf("current stage: %s, revisions: %d\n", p.Stage, len(p.History))
	return nil
}

func (c *console) pitch(ctx context.Context) error {
	var req models.PitchRequest
	if c.project != nil {
		req = models.PitchRequest{
			Title: c.project.Title, Logline: c.project.Logline,
			Genre: c.project.Genre, Tone: c.project.Tone,
		}
	} else {
		req.Title = c.promptWithDefault("Title", "Dhundh")
		req.Logline = c.promptWithDefault("Logline", "A detective hunts a ghost in Mumbai's monsoon")
	}
	pack, err := c.wf.GeneratePitch(ctx, consoleUserID, req)
	if err != nil {
		return err
	}
	printBox("Synopsis ("+pack.Source+")", pack.Synopsis)
	printBox("Beat sheet", numbered(pack.BeatSheet))
	printBox("Deck", numbered(pack.DeckOutline))
	if pack.Quality != nil {
		fmt.Printf("quality %s (%d)\n", pack.Quality.Label, pack.Quality.Score)
	}
	return nil
}

func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}

func printBox(title, content string) {
	writeBox(os.Stdout, title, content)
}

func writeBox(w io.Writer, title, content string) {
	wrappedLines := wrapContentForBox(content, cliBoxMaxWidth)
	maxWidth := utf8.RuneCountInString(title)
	for _, line := range wrappedLines {
		if n := utf8.RuneCountInString(line); n > maxWidth {
			maxWidth = n
		}
	}
	border := strings.Repeat("─", maxWidth+2)
	fmt.Fprintln(w, "┌"+border+"┐")
	if title != "" {
		fmt.Fprintf(w, "│ %s │\n", padRight(title, maxWidth))
		fmt.Fprintln(w, "├"+border+"┤")
	}
	if len(wrappedLines) == 0 {
		wrappedLines = []string{""}
	}
	for _, line := range wrappedLines {
		fmt.Fprintf(w, "│ %s │\n", padRight(line, maxWidth))
	}
	fmt.Fprintln(w, "└"+border+"┘")
}

func wrapContentForBox(content string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{content}
	}
	var result []string
	for _, rawLine := range strings.Split(content, "\n") {
		runes := []rune(strings.TrimRight(rawLine, " "))
		for len(runes) > maxWidth {
			result = append(result, string(runes[:maxWidth]))
			runes = runes[maxWidth:]
		}
		result = append(result, string(runes))
	}
	return result
}

func padRight(text string, width int) string {
	current := utf8.RuneCountInString(text)
	if current >= width {
		return text
	}
	return text + strings.Repeat(" ", width-current)
}

func truncateForCLI(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
