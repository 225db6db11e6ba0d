package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/internal/cli"
	"github.com/forest6511/daybook/pkg/audit"
	"github.com/forest6511/daybook/pkg/journal"
)

// Flags for add and edit
var (
	addMood string
	addTags string

	editTitle string
	editMood  string
	editTags  string

	listSearch string
	listTag    string
)

func init() {
	addCmd.Flags().StringVar(&addMood, "mood", "", "Mood for the entry")
	addCmd.Flags().StringVar(&addTags, "tags", "", "Comma-separated tags (e.g., work,travel)")

	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editMood, "mood", "", "New mood")
	editCmd.Flags().StringVar(&editTags, "tags", "", "New comma-separated tags")

	listCmd.Flags().StringVar(&listSearch, "search", "", "Filter entries by text")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Filter entries by tag")
}

// addCmd writes a new entry, reading its content from stdin.
var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Adds a journal entry from standard input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		fmt.Print("Write your entry (Ctrl+D to finish):\n")
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read entry content: %w", err)
		}

		entry := journal.Entry{
			Title:   args[0],
			Content: strings.TrimRight(string(content), "\n"),
			Mood:    addMood,
			Tags:    splitTags(addTags),
		}
		added, err := a.Store.Add(cmd.Context(), entry)
		if err != nil {
			return err
		}

		a.Audit.LogSuccess(audit.OpEntryCreate, audit.SourceCLI, added.ID)
		fmt.Printf("Added entry %s\n", added.ID)
		flushSync(cmd.Context())
		return nil
	},
}

// listCmd prints entries newest first.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists journal entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		entries, err := a.Store.Search(cmd.Context(), listSearch)
		if err != nil {
			return err
		}

		// --tag accepts globs, e.g. "work*".
		var wantTags []string
		if listTag != "" {
			wantTags, err = cli.ExpandPattern(listTag, collectTags(entries))
			if err != nil {
				return err
			}
		}

		shown := 0
		for _, e := range entries {
			if wantTags != nil && !hasAnyTag(e, wantTags) {
				continue
			}
			line := fmt.Sprintf("%s  %s  %s", e.Date.Format("2006-01-02"), e.ID, e.Title)
			if len(e.Tags) > 0 {
				line += "  [" + strings.Join(e.Tags, ",") + "]"
			}
			fmt.Println(line)
			shown++
		}
		if shown == 0 {
			fmt.Println("No entries found.")
		}
		return nil
	},
}

// showCmd prints one full entry.
var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Shows a single journal entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		entry, err := a.Store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Title: %s\n", entry.Title)
		fmt.Printf("Date:  %s\n", entry.Date.Format("2006-01-02 15:04"))
		if entry.Mood != "" {
			fmt.Printf("Mood:  %s\n", entry.Mood)
		}
		if len(entry.Tags) > 0 {
			fmt.Printf("Tags:  %s\n", strings.Join(entry.Tags, ", "))
		}
		if entry.UpdatedAt != nil {
			fmt.Printf("Edited: %s\n", entry.UpdatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Printf("\n%s\n", entry.Content)
		return nil
	},
}

// editCmd updates the fields given by flags; content comes from stdin
// unless only metadata flags are set.
var editCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edits a journal entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		entry, err := a.Store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if editTitle != "" {
			entry.Title = editTitle
		}
		if editMood != "" {
			entry.Mood = editMood
		}
		if editTags != "" {
			entry.Tags = splitTags(editTags)
		}
		if editTitle == "" && editMood == "" && editTags == "" {
			fmt.Print("Write the new content (Ctrl+D to finish):\n")
			content, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read entry content: %w", err)
			}
			entry.Content = strings.TrimRight(string(content), "\n")
		}

		if _, err := a.Store.Update(cmd.Context(), entry); err != nil {
			return err
		}
		a.Audit.LogSuccess(audit.OpEntryUpdate, audit.SourceCLI, entry.ID)
		fmt.Printf("Updated entry %s\n", entry.ID)
		flushSync(cmd.Context())
		return nil
	},
}

// rmCmd deletes an entry.
var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Deletes a journal entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		if err := a.Store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		a.Audit.LogSuccess(audit.OpEntryDelete, audit.SourceCLI, args[0])
		fmt.Printf("Deleted entry %s\n", args[0])
		flushSync(cmd.Context())
		return nil
	},
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func hasAnyTag(e journal.Entry, tags []string) bool {
	for _, t := range e.Tags {
		for _, want := range tags {
			if t == want {
				return true
			}
		}
	}
	return false
}

func collectTags(entries []journal.Entry) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, e := range entries {
		for _, t := range e.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}
