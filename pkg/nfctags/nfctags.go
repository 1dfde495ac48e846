package nfctags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const (
	TagsPath      = "NFCtags"
	TravelersPath = "Traveler"

	RecentLimit = 10

	// UnknownAssignedAt stands in for a tag written without a time
	UnknownAssignedAt = "Unknown"
)

var (
	ErrInvalidPhone     = errors.New("invalid phone number, 10-15 digits required")
	ErrInvalidUID       = errors.New("invalid UID format, 8 hex characters required")
	ErrTravelerNotFound = errors.New("phone number not registered")
	ErrNotAssigned      = errors.New("UID is not assigned")
)

// Tag is one card assignment stored under NFCtags/<uid>.
type Tag struct {
	UID        string `json:"uid,omitempty"`
	Phone      string `json:"phone"`
	AssignedAt string `json:"assignedAt"`
	DisplayUID string `json:"displayUID"`
}

type assignment struct {
	Phone string `validate:"required,number,min=10,max=15"`
	UID   string `validate:"required,len=8,hexadecimal,excludesall=xX"`
}

// NormaliseUID drops whitespace and upper cases the reader output.
func NormaliseUID(uid string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, uid))
}

// DisplayUID groups a UID in byte pairs, "04A1B2C3" becomes "04 A1 B2 C3".
func DisplayUID(uid string) string {
	uid = NormaliseUID(uid)

	pairs := []string{}
	for len(uid) > 2 {
		pairs = append(pairs, uid[:2])
		uid = uid[2:]
	}
	if uid != "" {
		pairs = append(pairs, uid)
	}

	return strings.Join(pairs, " ")
}

type Manager struct {
	Tree rtdb.Tree

	validate *validator.Validate
	now      func() time.Time
}

func NewManager(tree rtdb.Tree) *Manager {
	return &Manager{
		Tree:     tree,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (m *Manager) checkUID(uid string) (string, error) {
	uid = NormaliseUID(uid)
	if err := m.validate.Var(uid, "required,len=8,hexadecimal,excludesall=xX"); err != nil {
		return "", ErrInvalidUID
	}

	return uid, nil
}

// Assign links a card to a registered traveller. The traveller record gets
// the uid and the tag records the phone it belongs to.
func (m *Manager) Assign(ctx context.Context, phone string, uid string) (*Tag, error) {
	request := assignment{
		Phone: strings.TrimSpace(phone),
		UID:   NormaliseUID(uid),
	}

	if err := m.validate.Struct(request); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && validationErrors[0].Field() == "Phone" {
			return nil, ErrInvalidPhone
		}
		return nil, ErrInvalidUID
	}

	travelerPath := rtdb.JoinPath(TravelersPath, request.Phone)

	var traveler rtdb.Value
	if err := m.Tree.Get(ctx, travelerPath, &traveler); err != nil {
		return nil, fmt.Errorf("get traveller %s: %w", request.Phone, err)
	}
	if children, err := rtdb.Children(traveler); err != nil || children == nil {
		return nil, ErrTravelerNotFound
	}

	if err := m.Tree.Update(ctx, travelerPath, map[string]any{"uid": request.UID}); err != nil {
		return nil, fmt.Errorf("update traveller %s: %w", request.Phone, err)
	}

	tag := Tag{
		Phone:      request.Phone,
		AssignedAt: m.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		DisplayUID: DisplayUID(request.UID),
	}
	if err := m.Tree.Set(ctx, rtdb.JoinPath(TagsPath, request.UID), tag); err != nil {
		return nil, fmt.Errorf("write tag %s: %w", request.UID, err)
	}
	tag.UID = request.UID

	log.Info().Str("phone", tag.Phone).Str("uid", tag.UID).Msg("NFC tag assigned")

	return &tag, nil
}

// Check returns the assignment of uid, ErrNotAssigned when there is none.
func (m *Manager) Check(ctx context.Context, uid string) (*Tag, error) {
	uid, err := m.checkUID(uid)
	if err != nil {
		return nil, err
	}

	var tag *Tag
	if err := m.Tree.Get(ctx, rtdb.JoinPath(TagsPath, uid), &tag); err != nil {
		return nil, fmt.Errorf("get tag %s: %w", uid, err)
	}
	if tag == nil {
		return nil, ErrNotAssigned
	}
	tag.UID = uid
	if tag.DisplayUID == "" {
		tag.DisplayUID = DisplayUID(uid)
	}

	return tag, nil
}

// Recent lists the last RecentLimit tags in key order, newest assignment
// first. Tags without a readable assignment time go last.
func (m *Manager) Recent(ctx context.Context) ([]Tag, error) {
	var value rtdb.Value
	if err := m.Tree.Get(ctx, TagsPath, &value); err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}

	children, err := rtdb.Children(value)
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}

	uids := slices.SortedFunc(maps.Keys(children), rtdb.CompareKeys)
	if len(uids) > RecentLimit {
		uids = uids[len(uids)-RecentLimit:]
	}

	tags := []Tag{}
	for _, uid := range uids {
		var tag Tag
		if err := json.Unmarshal(children[uid], &tag); err != nil {
			log.Warn().Err(err).Str("uid", uid).Msg("Skipping unreadable tag")
			continue
		}

		tag.UID = uid
		if tag.AssignedAt == "" {
			tag.AssignedAt = UnknownAssignedAt
		}
		if tag.DisplayUID == "" {
			tag.DisplayUID = DisplayUID(uid)
		}

		tags = append(tags, tag)
	}

	slices.SortStableFunc(tags, func(a Tag, b Tag) int {
		aTime, aErr := time.Parse(time.RFC3339, a.AssignedAt)
		bTime, bErr := time.Parse(time.RFC3339, b.AssignedAt)

		switch {
		case aErr != nil && bErr != nil:
			return 0
		case aErr != nil:
			return 1
		case bErr != nil:
			return -1
		default:
			return bTime.Compare(aTime)
		}
	})

	return tags, nil
}
