package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"docuchat/api"
	"docuchat/engine"
	"docuchat/models"
)

// Custom message types for background work and optimistic UI updates

// ProjectCreatedMsg is sent when creating a project completes
type ProjectCreatedMsg struct {
	project models.Project
	err     error
}

// DeleteProjectMsg is sent when a project delete completes
type DeleteProjectMsg struct {
	projectID uint
	err       error
	// Store original item for rollback on failure
	originalItem projectItem
	originalIdx  int
}

// UploadCompleteMsg is sent when an upload batch completes
type UploadCompleteMsg struct {
	projectID uint
	results   []engine.UploadResult
	err       error
}

// ProcessMsg is sent when processing a file completes
type ProcessMsg struct {
	projectID    uint
	err          error
	originalItem fileItem
	originalIdx  int
}

// DeleteFileMsg is sent when a file record has been removed
type DeleteFileMsg struct {
	fileID string
	err    error
}

// IndexInfoMsg carries the index status of a project. A nil info with no
// error means nothing is indexed yet.
type IndexInfoMsg struct {
	projectID uint
	info      *api.IndexInfo
	err       error
}

// AnswerMsg is sent when a chat question has been answered or has failed
type AnswerMsg struct {
	message models.ChatMessage
	err     error
}

// filesMsg carries a fresh file list for a project
type filesMsg struct {
	projectID uint
	items     []list.Item
}

// reloadProjectsCmd creates a command that reloads the project list
func reloadProjectsCmd(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return reloadMsg{items: projectItems(eng.Projects.List())}
	}
}

// reloadFilesCmd creates a command that reloads a project's files
func reloadFilesCmd(eng *engine.Engine, projectID uint) tea.Cmd {
	return func() tea.Msg {
		return filesMsg{projectID: projectID, items: fileItems(eng.Files.ListByProject(projectID))}
	}
}

// createProjectCmd creates a command that adds a project
func createProjectCmd(eng *engine.Engine, name, description string) tea.Cmd {
	return func() tea.Msg {
		p, err := eng.CreateProject(name, description)
		return ProjectCreatedMsg{project: p, err: err}
	}
}

// deleteProjectCmd creates a command that deletes a project in the background
func deleteProjectCmd(eng *engine.Engine, originalItem projectItem, originalIdx int) tea.Cmd {
	return func() tea.Msg {
		err := eng.DeleteProject(originalItem.project.ID)
		return DeleteProjectMsg{
			projectID:    originalItem.project.ID,
			err:          err,
			originalItem: originalItem,
			originalIdx:  originalIdx,
		}
	}
}

// uploadFilesCmd creates a command that uploads documents one at a time
func uploadFilesCmd(ctx context.Context, eng *engine.Engine, projectID uint, paths []string) tea.Cmd {
	return func() tea.Msg {
		results, err := eng.UploadFiles(ctx, projectID, paths)
		return UploadCompleteMsg{projectID: projectID, results: results, err: err}
	}
}

// processFileCmd creates a command that indexes a file with the default
// parameters
func processFileCmd(ctx context.Context, eng *engine.Engine, originalItem fileItem, originalIdx int) tea.Cmd {
	return func() tea.Msg {
		err := eng.ProcessFile(ctx, originalItem.file.ID, eng.ProcessParams())
		return ProcessMsg{
			projectID:    originalItem.file.ProjectID,
			err:          err,
			originalItem: originalItem,
			originalIdx:  originalIdx,
		}
	}
}

// deleteFileCmd creates a command that removes a local file record
func deleteFileCmd(eng *engine.Engine, fileID string) tea.Cmd {
	return func() tea.Msg {
		return DeleteFileMsg{fileID: fileID, err: eng.DeleteFile(fileID)}
	}
}

// indexInfoCmd creates a command that fetches a project's index status
func indexInfoCmd(ctx context.Context, eng *engine.Engine, projectID uint) tea.Cmd {
	return func() tea.Msg {
		info, _, err := eng.IndexStatus(ctx, projectID)
		return IndexInfoMsg{projectID: projectID, info: info, err: err}
	}
}

// askCmd creates a command that answers a question already started on chat
func askCmd(ctx context.Context, chat *engine.Chat, question string) tea.Cmd {
	return func() tea.Msg {
		msg, err := chat.Finish(ctx, question)
		return AnswerMsg{message: msg, err: err}
	}
}
