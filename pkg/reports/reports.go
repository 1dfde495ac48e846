package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/busspass/busspass/pkg/notify"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

const EmergencyPath = "emergency"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusResolved = "resolved"
)

var (
	ErrNotFound      = errors.New("report not found")
	ErrInvalidStatus = errors.New("status must be approved, rejected or resolved")
	ErrMissingFields = errors.New("title, message and receiver are required")
)

type Report struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	Timestamp Millis `json:"timestamp"`
	Receiver  string `json:"receiver,omitempty"`
	Status    string `json:"status"`
}

type Message struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Receiver string `json:"receiver"`
}

// Notifier queues a push for an approved report.
type Notifier interface {
	Notify(ctx context.Context, notification notify.Notification) error
}

type Manager struct {
	Tree     rtdb.Tree
	Notifier Notifier

	now func() time.Time
}

func NewManager(tree rtdb.Tree, notifier Notifier) *Manager {
	return &Manager{
		Tree:     tree,
		Notifier: notifier,
		now:      time.Now,
	}
}

func (m *Manager) all(ctx context.Context) ([]Report, error) {
	var value rtdb.Value
	if err := m.Tree.Get(ctx, EmergencyPath, &value); err != nil {
		return nil, fmt.Errorf("get reports: %w", err)
	}

	raw, err := rtdb.Children(value)
	if err != nil {
		return nil, fmt.Errorf("get reports: %w", err)
	}

	reports := []Report{}
	for id, value := range raw {
		var report Report
		if err := json.Unmarshal(value, &report); err != nil {
			log.Warn().Err(err).Str("report", id).Msg("Skipping unreadable report")
			continue
		}
		report.ID = id

		reports = append(reports, report)
	}

	return reports, nil
}

// Pending lists reports waiting for a decision, oldest first.
func (m *Manager) Pending(ctx context.Context) ([]Report, error) {
	reports, err := m.all(ctx)
	if err != nil {
		return nil, err
	}

	pending := slices.DeleteFunc(reports, func(report Report) bool {
		return report.Status != StatusPending
	})
	slices.SortFunc(pending, func(a Report, b Report) int {
		return compare(a, b)
	})

	return pending, nil
}

// History lists every decided report, newest first.
func (m *Manager) History(ctx context.Context) ([]Report, error) {
	reports, err := m.all(ctx)
	if err != nil {
		return nil, err
	}

	history := slices.DeleteFunc(reports, func(report Report) bool {
		return report.Status == "" || report.Status == StatusPending
	})
	slices.SortFunc(history, func(a Report, b Report) int {
		return compare(b, a)
	})

	return history, nil
}

func compare(a Report, b Report) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}

	return strings.Compare(a.ID, b.ID)
}

func (m *Manager) Get(ctx context.Context, id string) (*Report, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, ErrNotFound
	}

	var report *Report
	if err := m.Tree.Get(ctx, rtdb.JoinPath(EmergencyPath, id), &report); err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	if report == nil {
		return nil, ErrNotFound
	}
	report.ID = id

	return report, nil
}

func (m *Manager) UpdateStatus(ctx context.Context, id string, status string) error {
	switch status {
	case StatusApproved, StatusRejected, StatusResolved:
	default:
		return ErrInvalidStatus
	}

	report, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := m.Tree.Update(ctx, rtdb.JoinPath(EmergencyPath, id), map[string]any{"status": status}); err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}

	log.Info().Str("report", id).Str("status", status).Msg("Report status updated")

	if status == StatusApproved {
		m.notify(ctx, *report)
	}

	return nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}

	return m.Tree.Delete(ctx, rtdb.JoinPath(EmergencyPath, id))
}

// SendMessage records a message from the admin. Admin messages skip review.
func (m *Manager) SendMessage(ctx context.Context, message Message) (*Report, error) {
	message.Title = strings.TrimSpace(message.Title)
	message.Message = strings.TrimSpace(message.Message)
	message.Receiver = strings.TrimSpace(message.Receiver)

	if message.Title == "" || message.Message == "" || message.Receiver == "" {
		return nil, ErrMissingFields
	}

	report := Report{
		Title:     message.Title,
		Message:   message.Message,
		Sender:    "admin",
		Role:      "admin",
		Timestamp: Millis(m.now().UnixMilli()),
		Receiver:  message.Receiver,
		Status:    StatusApproved,
	}

	id, err := m.Tree.Push(ctx, EmergencyPath, report)
	if err != nil {
		return nil, fmt.Errorf("push message: %w", err)
	}
	report.ID = id

	m.notify(ctx, report)

	return &report, nil
}

// notify failures are logged only, the report itself is already stored.
func (m *Manager) notify(ctx context.Context, report Report) {
	if m.Notifier == nil {
		return
	}

	err := m.Notifier.Notify(ctx, notify.Notification{
		Title: report.Title,
		Body:  report.Message,
	})
	if err != nil {
		log.Error().Err(err).Str("report", report.ID).Msg("Failed to queue notification")
	}
}

type historyRow struct {
	ID       string `csv:"id"`
	Date     string `csv:"date"`
	Title    string `csv:"title"`
	Message  string `csv:"message"`
	Sender   string `csv:"sender"`
	Role     string `csv:"role"`
	Receiver string `csv:"receiver"`
	Status   string `csv:"status"`
}

// WriteCSV writes reports as CSV with a header row.
func WriteCSV(w io.Writer, reports []Report) error {
	rows := []*historyRow{}
	for _, report := range reports {
		rows = append(rows, &historyRow{
			ID:       report.ID,
			Date:     report.Timestamp.Time().UTC().Format(time.RFC3339),
			Title:    report.Title,
			Message:  report.Message,
			Sender:   report.Sender,
			Role:     report.Role,
			Receiver: report.Receiver,
			Status:   report.Status,
		})
	}

	return gocsv.Marshal(rows, w)
}
