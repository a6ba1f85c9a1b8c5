package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"docuchat/api"
	"docuchat/engine"
	"docuchat/models"
)

// projectItem wraps a Project and implements the list.Item interface
type projectItem struct {
	project   models.Project
	isLoading bool
}

// FilterValue implements list.Item
func (i projectItem) FilterValue() string {
	return i.project.Name + " " + i.project.Description
}

// Title implements list.DefaultItem
func (i projectItem) Title() string {
	if i.isLoading {
		return i.project.Name + " [Deleting...]"
	}
	return i.project.Name
}

// Description implements list.DefaultItem
func (i projectItem) Description() string {
	docs := "documents"
	if i.project.DocumentCount == 1 {
		docs = "document"
	}
	desc := fmt.Sprintf("%d %s • active %s", i.project.DocumentCount, docs, humanize.Time(i.project.LastActivity))
	if i.project.Description != "" {
		desc += " • " + i.project.Description
	}
	return desc
}

// screenState represents the current screen being displayed
type screenState int

const (
	screenList screenState = iota
	screenCreate
	screenProject
)

// projectTab is the active tab of the project screen
type projectTab int

const (
	tabFiles projectTab = iota
	tabChat
)

// model represents the Bubble Tea application model
type model struct {
	ctx    context.Context
	engine *engine.Engine
	screen screenState

	// project list
	list               list.Model
	confirmDelete      bool
	deleteConfirmInput textinput.Model
	deleteProject      *projectItem
	deleteIdx          int

	// new project form
	nameInput   textinput.Model
	descInput   textinput.Model
	createFocus int

	// project screen
	project    models.Project
	tab        projectTab
	files      list.Model
	pathInput  textinput.Model
	enterPaths bool
	uploading  bool
	indexInfo  *api.IndexInfo
	indexKnown bool

	// chat
	chats      map[uint]*engine.Chat
	chatInput  textinput.Model
	history    viewport.Model
	spinner    spinner.Model
	suggestion int

	errorMessage  string
	statusMessage string
	width         int
	height        int
	ready         bool
}

// Init initializes the model
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, reloadProjectsCmd(m.engine))
}

// Update handles messages and updates the model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		listWidth := msg.Width - 4
		listHeight := msg.Height - 8
		if listHeight < 10 {
			listHeight = 10
		}
		m.list.SetSize(listWidth, listHeight)
		m.files.SetSize(listWidth, listHeight-4)
		m.history.Width = listWidth
		m.history.Height = listHeight - 4
		m.refreshHistory()
	}

	// Results of background work are handled whatever screen is showing
	switch msg := msg.(type) {
	case reloadMsg:
		cmd := m.list.SetItems(msg.items)
		return m, cmd

	case ProjectCreatedMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Failed to create project: %v", msg.err)
			return m, nil
		}
		m.screen = screenList
		m.errorMessage = ""
		m.statusMessage = fmt.Sprintf("Project %q created", msg.project.Name)
		return m, reloadProjectsCmd(m.engine)

	case DeleteProjectMsg:
		if msg.err != nil {
			// ROLLBACK: put the project back where it was
			idx := msg.originalIdx
			if idx < 0 || idx > len(m.list.Items()) {
				idx = len(m.list.Items())
			}
			cmd := m.list.InsertItem(idx, msg.originalItem)
			m.errorMessage = fmt.Sprintf("Delete failed: %v", msg.err)
			return m, cmd
		}
		delete(m.chats, msg.projectID)
		m.statusMessage = fmt.Sprintf("Project %q deleted", msg.originalItem.project.Name)
		return m, nil

	case filesMsg:
		if msg.projectID == m.project.ID {
			cmd := m.files.SetItems(msg.items)
			return m, cmd
		}
		return m, nil

	case UploadCompleteMsg:
		return m.handleUploadComplete(msg)

	case ProcessMsg:
		return m.handleProcessComplete(msg)

	case DeleteFileMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Delete failed: %v", msg.err)
		} else {
			m.statusMessage = "File removed"
		}
		return m, reloadFilesCmd(m.engine, m.project.ID)

	case IndexInfoMsg:
		if msg.projectID != m.project.ID {
			return m, nil
		}
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Index status unavailable: %v", msg.err)
			return m, nil
		}
		m.indexInfo = msg.info
		m.indexKnown = true
		return m, nil

	case AnswerMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Request failed: %v", msg.err)
		} else {
			m.errorMessage = ""
		}
		m.refreshHistory()
		return m, nil

	case spinner.TickMsg:
		if chat := m.currentChat(); chat == nil || !chat.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshHistory()
		return m, cmd

	case ErrorMsg:
		m.errorMessage = msg.err.Error()
		return m, nil
	}

	switch m.screen {
	case screenCreate:
		return m.updateCreate(msg)
	case screenProject:
		return m.updateProject(msg)
	}
	return m.updateList(msg)
}

// updateList handles updates for the project list screen
func (m model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	// If in delete confirmation mode, only handle enter and esc
	if m.confirmDelete {
		switch keyMsg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			if m.deleteConfirmInput.Value() != "DELETE" {
				m.errorMessage = "You must type 'DELETE' exactly to confirm"
				return m, nil
			}
			originalItem := *m.deleteProject
			originalIdx := m.deleteIdx

			// OPTIMISTIC: drop the project from the list right away
			if originalIdx >= 0 {
				m.list.RemoveItem(originalIdx)
			}
			m.confirmDelete = false
			m.deleteProject = nil
			m.errorMessage = ""
			return m, deleteProjectCmd(m.engine, originalItem, originalIdx)
		case "esc":
			m.confirmDelete = false
			m.deleteProject = nil
			m.statusMessage = "Delete cancelled"
			m.errorMessage = ""
			return m, nil
		default:
			var cmd tea.Cmd
			m.deleteConfirmInput, cmd = m.deleteConfirmInput.Update(keyMsg)
			return m, cmd
		}
	}

	// If list is filtering, let it handle all keys
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(keyMsg)
		return m, cmd
	}

	switch keyMsg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "n":
		m.screen = screenCreate
		m.errorMessage = ""
		m.statusMessage = ""
		m.nameInput.Reset()
		m.descInput.Reset()
		m.createFocus = 0
		m.descInput.Blur()
		return m, m.nameInput.Focus()

	case "d":
		item, ok := m.list.SelectedItem().(projectItem)
		if !ok {
			return m, nil
		}
		m.confirmDelete = true
		itemCopy := item
		m.deleteProject = &itemCopy
		m.deleteIdx = itemIndex(m.list.Items(), item.project.ID)
		m.errorMessage = ""
		m.statusMessage = ""

		confirmInput := textinput.New()
		confirmInput.Placeholder = "Type DELETE to confirm"
		confirmInput.Focus()
		confirmInput.CharLimit = 10
		confirmInput.Width = 30
		m.deleteConfirmInput = confirmInput
		return m, textinput.Blink

	case "enter":
		item, ok := m.list.SelectedItem().(projectItem)
		if !ok {
			return m, nil
		}
		return m.openProject(item.project)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(keyMsg)
	return m, cmd
}

// updateCreate handles updates for the new project form
func (m model) updateCreate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.screen = screenList
			m.errorMessage = ""
			m.statusMessage = "Cancelled"
			return m, nil
		case "tab", "shift+tab", "up", "down":
			m.createFocus = (m.createFocus + 1) % 2
			if m.createFocus == 0 {
				m.descInput.Blur()
				return m, m.nameInput.Focus()
			}
			m.nameInput.Blur()
			return m, m.descInput.Focus()
		case "enter":
			name := strings.TrimSpace(m.nameInput.Value())
			if name == "" {
				m.errorMessage = "Please enter a project name"
				return m, nil
			}
			m.errorMessage = ""
			m.statusMessage = "Creating project..."
			return m, createProjectCmd(m.engine, name, m.descInput.Value())
		}
	}

	var cmd tea.Cmd
	if m.createFocus == 0 {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.descInput, cmd = m.descInput.Update(msg)
	}
	return m, cmd
}

// View renders the UI
func (m model) View() string {
	switch m.screen {
	case screenCreate:
		return m.viewCreate()
	case screenProject:
		return m.viewProject()
	}
	return m.viewList()
}

// footer renders the error and status lines
func (m model) footer() string {
	s := ""
	if m.errorMessage != "" {
		s += errorStyle.Render("\n⚠ " + m.errorMessage)
	}
	if m.statusMessage != "" {
		s += statusStyle.Render("\n✓ " + m.statusMessage)
	}
	return s
}

// viewList renders the project list screen
func (m model) viewList() string {
	if !m.ready {
		return "Loading..."
	}

	view := m.list.View()
	if len(m.list.Items()) == 0 {
		view += subtitleStyle.Render("\nNo projects yet. Press n to create your first project.")
	}
	view += m.footer()

	deletePrompt := ""
	if m.confirmDelete && m.deleteProject != nil {
		p := m.deleteProject.project
		deletePrompt = "\n\n" +
			errorStyle.Render("⚠ WARNING: DELETE PROJECT") + "\n\n" +
			fmt.Sprintf("Project: %s\n", p.Name) +
			fmt.Sprintf("Documents: %d\n\n", p.DocumentCount) +
			warningStyle.Render("Local file records are removed. Indexed data stays on the backend.\n\n") +
			errorStyle.Render("Type 'DELETE' to confirm: ") + "\n" +
			m.deleteConfirmInput.View() + "\n\n" +
			subtitleStyle.Render("Press Enter to confirm | ESC to cancel")
	}

	helpText := subtitleStyle.Render("\n\nKeys: enter=open  n=new  d=delete  /=filter  q=quit")
	return view + deletePrompt + helpText
}

// viewCreate renders the new project form
func (m model) viewCreate() string {
	s := titleStyle.Render("Create New Project") + "\n\n"
	s += "Project Name\n" + m.nameInput.View() + "\n\n"
	s += "Description (optional)\n" + m.descInput.View() + "\n"
	s += m.footer()
	s += subtitleStyle.Render("\n\nPress Enter to create | Tab to switch field | ESC to cancel")
	return docStyle.Render(s)
}

// NewModel creates the application model over an engine
func NewModel(ctx context.Context, eng *engine.Engine) (model, error) {
	if eng == nil {
		return model{}, fmt.Errorf("engine is required")
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(projectItems(eng.Projects.List()), delegate, 80, 20)
	l.Title = "DocuChat - Projects"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	fl := list.New([]list.Item{}, list.NewDefaultDelegate(), 80, 16)
	fl.SetShowTitle(false)
	fl.SetFilteringEnabled(false)
	fl.SetShowHelp(false)
	fl.DisableQuitKeybindings()

	name := textinput.New()
	name.Placeholder = "e.g., Research Papers"
	name.CharLimit = 255
	name.Width = 50

	desc := textinput.New()
	desc.Placeholder = "What is this project about?"
	desc.CharLimit = 500
	desc.Width = 50

	paths := textinput.New()
	paths.Placeholder = "Paths to .pdf, .docx or .txt files or folders, comma separated"
	paths.CharLimit = 4096
	paths.Width = 70

	chatInput := textinput.New()
	chatInput.Placeholder = "Ask anything about your documents..."
	chatInput.CharLimit = 2000
	chatInput.Width = 70

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		ctx:                ctx,
		engine:             eng,
		screen:             screenList,
		list:               l,
		files:              fl,
		nameInput:          name,
		descInput:          desc,
		pathInput:          paths,
		chatInput:          chatInput,
		deleteConfirmInput: textinput.New(),
		history:            viewport.New(80, 16),
		spinner:            sp,
		chats:              make(map[uint]*engine.Chat),
		width:              80,
		height:             24,
	}, nil
}

func projectItems(projects []models.Project) []list.Item {
	items := make([]list.Item, len(projects))
	for i, p := range projects {
		items[i] = projectItem{project: p}
	}
	return items
}

// itemIndex finds a project in the unfiltered items
func itemIndex(items []list.Item, id uint) int {
	for i, it := range items {
		if p, ok := it.(projectItem); ok && p.project.ID == id {
			return i
		}
	}
	return -1
}

// reloadMsg is sent when the project list needs to be reloaded
type reloadMsg struct {
	items []list.Item
}

// ErrorMsg displays an error message to the user
type ErrorMsg struct {
	err error
}
