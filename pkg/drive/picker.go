package drive

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const pickerPageSize = 30

// ListRecent returns the user's most recently modified, non-trashed files.
func ListRecent(ctx context.Context, srv *drive.Service, limit int64) ([]FileRef, error) {
	list, err := srv.Files.List().
		Q("trashed = false and mimeType != 'application/vnd.google-apps.folder'").
		OrderBy("modifiedTime desc").
		PageSize(limit).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive error: %w", err)
	}
	refs := make([]FileRef, 0, len(list.Files))
	for _, f := range list.Files {
		refs = append(refs, FileRef{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
	}
	return refs, nil
}

// TerminalPicker lists recent Drive files and lets the user choose one in
// the terminal.
type TerminalPicker struct {
	ServiceOptions []option.ClientOption
}

func (p *TerminalPicker) OpenPicker(ctx context.Context, token *oauth2.Token) (*FileRef, error) {
	srv, err := NewService(ctx, token, p.ServiceOptions...)
	if err != nil {
		return nil, err
	}
	files, err := ListRecent(ctx, srv, pickerPageSize)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in Google Drive")
	}

	prog := tea.NewProgram(newPickerModel(files), tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	final, err := prog.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(pickerModel)
	if !ok {
		return nil, nil
	}
	return m.chosen, nil
}

var (
	pickerTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	pickerSelected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	pickerMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type pickerModel struct {
	files    []FileRef
	selected int
	chosen   *FileRef
	done     bool
}

func newPickerModel(files []FileRef) pickerModel {
	return pickerModel{files: files}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.chosen = nil
		m.done = true
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.files)-1 {
			m.selected++
		}
	case "enter":
		if len(m.files) > 0 {
			f := m.files[m.selected]
			m.chosen = &f
		}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(pickerTitle.Render("Choose a journal file from Google Drive"))
	b.WriteString("\n\n")
	for i, f := range m.files {
		line := fmt.Sprintf("  %s", f.Name)
		if i == m.selected {
			line = pickerSelected.Render("› " + f.Name)
		}
		b.WriteString(line)
		if f.MimeType == GoogleDocMimeType {
			b.WriteString(pickerMuted.Render("  (doc)"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(pickerMuted.Render("↑/↓ move • enter select • q cancel"))
	b.WriteString("\n")
	return b.String()
}
