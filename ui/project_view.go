package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"docuchat/engine"
	"docuchat/models"
)

// fileItem wraps an UploadedFile and implements the list.Item interface
type fileItem struct {
	file models.UploadedFile
}

// FilterValue implements list.Item
func (i fileItem) FilterValue() string {
	return i.file.Name
}

// Title implements list.DefaultItem
func (i fileItem) Title() string {
	return i.file.Name + " " + statusBadge(i.file.Status)
}

// Description implements list.DefaultItem
func (i fileItem) Description() string {
	desc := fmt.Sprintf("%s • uploaded %s", i.file.Size, humanize.Time(i.file.UploadDate))
	if !i.file.Uploaded() {
		desc += " • not on backend"
	}
	if i.file.Error != "" {
		desc += " • " + i.file.Error
	}
	return desc
}

func fileItems(files []models.UploadedFile) []list.Item {
	items := make([]list.Item, len(files))
	for i, f := range files {
		items[i] = fileItem{file: f}
	}
	return items
}

// openProject switches to the project screen
func (m model) openProject(p models.Project) (tea.Model, tea.Cmd) {
	m.screen = screenProject
	m.project = p
	m.tab = tabFiles
	m.enterPaths = false
	m.indexInfo = nil
	m.indexKnown = false
	m.errorMessage = ""
	m.statusMessage = ""
	m.files.SetItems(fileItems(m.engine.Files.ListByProject(p.ID)))
	if _, ok := m.chats[p.ID]; !ok {
		m.chats[p.ID] = m.engine.NewChat(p.ID)
	}
	m.suggestion = 0
	m.chatInput.Reset()
	m.chatInput.Blur()
	m.refreshHistory()
	return m, indexInfoCmd(m.ctx, m.engine, p.ID)
}

// currentChat returns the chat of the open project
func (m model) currentChat() *engine.Chat {
	if m.screen != screenProject {
		return nil
	}
	return m.chats[m.project.ID]
}

// updateProject handles updates for the project screen
func (m model) updateProject(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.tab == tabChat {
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.files, cmd = m.files.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.enterPaths {
			m.enterPaths = false
			m.pathInput.Blur()
			m.statusMessage = "Upload cancelled"
			return m, nil
		}
		m.screen = screenList
		m.chatInput.Blur()
		m.errorMessage = ""
		m.statusMessage = ""
		return m, reloadProjectsCmd(m.engine)
	case "tab":
		if m.enterPaths {
			return m, nil
		}
		m.errorMessage = ""
		if m.tab == tabFiles {
			m.tab = tabChat
			m.refreshHistory()
			return m, m.chatInput.Focus()
		}
		m.tab = tabFiles
		m.chatInput.Blur()
		return m, nil
	}

	if m.tab == tabChat {
		return m.updateChat(keyMsg)
	}
	return m.updateFiles(keyMsg)
}

// updateFiles handles keys on the files tab
func (m model) updateFiles(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.enterPaths {
		if msg.String() != "enter" {
			var cmd tea.Cmd
			m.pathInput, cmd = m.pathInput.Update(msg)
			return m, cmd
		}
		paths := splitPaths(m.pathInput.Value())
		if len(paths) == 0 {
			m.errorMessage = "Please enter at least one path"
			return m, nil
		}
		m.enterPaths = false
		m.pathInput.Blur()
		m.uploading = true
		m.errorMessage = ""
		m.statusMessage = fmt.Sprintf("Uploading %d path(s)...", len(paths))
		return m, uploadFilesCmd(m.ctx, m.engine, m.project.ID, paths)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "u":
		if m.uploading {
			return m, nil
		}
		m.enterPaths = true
		m.pathInput.Reset()
		m.errorMessage = ""
		m.statusMessage = ""
		return m, tea.Batch(m.pathInput.Focus(), textinput.Blink)

	case "p":
		item, ok := m.files.SelectedItem().(fileItem)
		if !ok {
			return m, nil
		}
		if !item.file.Uploaded() {
			m.errorMessage = fmt.Sprintf("%s has not been uploaded to the backend yet", item.file.Name)
			return m, nil
		}
		if item.file.Status == models.StatusProcessing {
			return m, nil
		}
		originalItem := item
		originalIdx := m.files.Index()

		// OPTIMISTIC: show processing before the backend answers
		item.file.Status = models.StatusProcessing
		item.file.Error = ""
		cmd := m.files.SetItem(originalIdx, item)
		m.errorMessage = ""
		m.statusMessage = fmt.Sprintf("Processing %s...", item.file.Name)
		return m, tea.Batch(cmd, processFileCmd(m.ctx, m.engine, originalItem, originalIdx))

	case "x":
		item, ok := m.files.SelectedItem().(fileItem)
		if !ok {
			return m, nil
		}
		m.files.RemoveItem(m.files.Index())
		return m, deleteFileCmd(m.engine, item.file.ID)

	case "r":
		return m, indexInfoCmd(m.ctx, m.engine, m.project.ID)
	}

	var cmd tea.Cmd
	m.files, cmd = m.files.Update(msg)
	return m, cmd
}

// updateChat handles keys on the chat tab
func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	chat := m.currentChat()
	if chat == nil {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		question := strings.TrimSpace(m.chatInput.Value())
		if question == "" {
			return m, nil
		}
		if err := chat.Begin(question); err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		m.chatInput.Reset()
		m.errorMessage = ""
		m.refreshHistory()
		return m, tea.Batch(askCmd(m.ctx, chat, question), m.spinner.Tick)

	case "ctrl+n":
		suggestions := engine.SuggestedQuestions()
		m.chatInput.SetValue(suggestions[m.suggestion%len(suggestions)])
		m.chatInput.CursorEnd()
		m.suggestion++
		return m, nil

	case "ctrl+l":
		if chat.Pending() {
			return m, nil
		}
		chat.Clear()
		m.refreshHistory()
		m.statusMessage = "Chat cleared"
		return m, nil

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m model) handleUploadComplete(msg UploadCompleteMsg) (tea.Model, tea.Cmd) {
	m.uploading = false
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Upload failed: %v", msg.err)
		m.statusMessage = ""
	} else {
		ok, failed := 0, []string{}
		for _, r := range msg.results {
			if r.Err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", filepath.Base(r.Path), r.Err))
				continue
			}
			ok++
		}
		m.statusMessage = fmt.Sprintf("Uploaded %d of %d file(s)", ok, len(msg.results))
		m.errorMessage = strings.Join(failed, "; ")
		if len(msg.results) == 0 {
			m.statusMessage = "No documents found"
		}
	}
	if msg.projectID != m.project.ID {
		return m, nil
	}
	if p, ok := m.engine.Projects.Get(m.project.ID); ok {
		m.project = p
	}
	return m, tea.Batch(reloadFilesCmd(m.engine, m.project.ID), indexInfoCmd(m.ctx, m.engine, m.project.ID))
}

func (m model) handleProcessComplete(msg ProcessMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Processing failed: %v", msg.err)
		m.statusMessage = ""
	} else {
		m.errorMessage = ""
		m.statusMessage = fmt.Sprintf("%s indexed", msg.originalItem.file.Name)
	}
	if msg.projectID != m.project.ID {
		return m, nil
	}
	// The store holds the final status either way
	return m, tea.Batch(reloadFilesCmd(m.engine, m.project.ID), indexInfoCmd(m.ctx, m.engine, m.project.ID))
}

// refreshHistory re-renders the chat transcript into the viewport
func (m *model) refreshHistory() {
	chat := m.currentChat()
	if chat == nil {
		return
	}
	m.history.SetContent(m.renderMessages(chat))
	m.history.GotoBottom()
}

func (m model) renderMessages(chat *engine.Chat) string {
	width := m.history.Width - 2
	if width < 20 {
		width = 20
	}
	body := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for _, msg := range chat.Messages() {
		stamp := msg.Timestamp.Local().Format("15:04")
		if msg.Role == models.RoleUser {
			b.WriteString(userStyle.Render("You") + subtitleStyle.Render(" · "+stamp) + "\n")
		} else {
			b.WriteString(assistantStyle.Render("Assistant") + subtitleStyle.Render(" · "+stamp) + "\n")
		}
		if msg.Typing {
			b.WriteString(m.spinner.View() + subtitleStyle.Render(" thinking...") + "\n\n")
			continue
		}
		b.WriteString(body.Render(msg.Content) + "\n")
		if len(msg.Sources) > 0 {
			b.WriteString(sourceStyle.Render("Sources:") + "\n")
			for _, src := range msg.Sources {
				line := "↳ " + src.Label
				if src.Score != nil {
					line += fmt.Sprintf(" (%.2f)", *src.Score)
				}
				b.WriteString(sourceStyle.Render(line) + "\n")
			}
		}
		b.WriteString("\n")
	}

	if chat.Fresh() {
		b.WriteString(titleStyle.Render("Ask anything about your documents") + "\n")
		b.WriteString(subtitleStyle.Render("Try one of these questions (ctrl+n):") + "\n")
		for _, q := range engine.SuggestedQuestions() {
			b.WriteString(suggestionStyle.Render(q) + "\n")
		}
	}
	return b.String()
}

// viewProject renders the project screen
func (m model) viewProject() string {
	header := titleStyle.Render(m.project.Name)
	if m.project.Description != "" {
		header += "\n" + subtitleStyle.Render(m.project.Description)
	}

	filesTab, chatTab := inactiveTabStyle, inactiveTabStyle
	if m.tab == tabFiles {
		filesTab = activeTabStyle
	} else {
		chatTab = activeTabStyle
	}
	tabs := lipgloss.JoinHorizontal(lipgloss.Top,
		filesTab.Render(fmt.Sprintf("Files (%d)", len(m.files.Items()))),
		chatTab.Render("Chat"),
	)

	var body, help string
	if m.tab == tabFiles {
		body = m.viewFiles()
		help = "Keys: u=upload  p=process  x=remove  r=refresh index  tab=chat  esc=back  q=quit"
		if m.enterPaths {
			help = "Press Enter to upload | ESC to cancel"
		}
	} else {
		body = m.history.View() + "\n\n" + m.chatInput.View()
		help = "Keys: enter=send  ctrl+n=suggest  ctrl+l=clear  pgup/pgdown=scroll  tab=files  esc=back"
	}

	return docStyle.Render(header + "\n\n" + tabs + "\n\n" + body + m.footer() + subtitleStyle.Render("\n\n"+help))
}

func (m model) viewFiles() string {
	s := m.indexSummary() + "\n\n"
	if len(m.files.Items()) == 0 {
		s += subtitleStyle.Render("No documents yet. Press u to upload .pdf, .docx or .txt files.") + "\n"
	} else {
		s += m.files.View()
	}
	if m.uploading {
		s += warningStyle.Render("\n⟳ Uploading...")
	}
	if m.enterPaths {
		s += "\n\nUpload documents:\n" + m.pathInput.View()
	}
	return s
}

func (m model) indexSummary() string {
	if !m.indexKnown {
		return subtitleStyle.Render("Index: checking...")
	}
	if m.indexInfo == nil {
		return subtitleStyle.Render("Index: nothing indexed yet")
	}
	docs, chunks := "?", "?"
	if m.indexInfo.TotalDocuments != nil {
		docs = humanize.Comma(int64(*m.indexInfo.TotalDocuments))
	}
	if m.indexInfo.TotalChunks != nil {
		chunks = humanize.Comma(int64(*m.indexInfo.TotalChunks))
	}
	return statusStyle.Render(fmt.Sprintf("Index: %s documents, %s chunks", docs, chunks))
}

// splitPaths splits comma separated input into trimmed paths
func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
