package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of an inspection target.
type Status string

const (
	StatusNotStarted Status = "NÃO INICIADA"
	StatusInProgress Status = "EM ANDAMENTO"
	StatusDone       Status = "CONCLUÍDA"

	// StatusInService is used by some views as a synonym of StatusInProgress.
	StatusInService Status = "EM ATENDIMENTO"
)

// Statuses lists the canonical statuses in display order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusDone}

// NormalizeStatus maps a raw status string onto the canonical set. Unknown
// values are returned trimmed and upper-cased.
func NormalizeStatus(raw string) Status {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if s == StatusInService {
		return StatusInProgress
	}
	return s
}

// Known reports whether s is one of the canonical statuses (after aliasing).
func (s Status) Known() bool {
	n := NormalizeStatus(string(s))
	for _, c := range Statuses {
		if n == c {
			return true
		}
	}
	return false
}

// Team groups user accounts responsible for a subset of targets.
type Team struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status,omitempty"`
	Color     string   `json:"color,omitempty"`
	Targets   []Target `json:"targets,omitempty"`
	Users     []User   `json:"users,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// User mirrors the identity record returned by /user.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Teams     []Team `json:"teams"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Target is a single inspection task.
type Target struct {
	ID                   int64  `json:"id"`
	NumeroArt            string `json:"numeroArt"`
	TipoArt              string `json:"tipoArt"`
	NomeProfissional     string `json:"nomeProfissional"`
	TituloProfissional   string `json:"tituloProfissional"`
	Empresa              string `json:"empresa"`
	CNPJ                 string `json:"cnpj"`
	Contratante          string `json:"contratante"`
	NomeProprietario     string `json:"nomeProprietario"`
	TelefoneProprietario string `json:"telefoneProprietario"`
	EnderecoObra         string `json:"enderecoObra"`
	CapacidadeObra       string `json:"capacidadeObra"`
	Latitude             string `json:"latitude"`
	Longitude            string `json:"longitude"`
	Status               Status `json:"status"`
	TeamID               *int64 `json:"teamId"`
	CreatedAt            string `json:"createdAt"`
	UpdatedAt            string `json:"updatedAt"`
	Team                 *Team  `json:"team,omitempty"`
}

// Assigned reports whether the target belongs to a team.
func (t Target) Assigned() bool {
	return t.TeamID != nil && *t.TeamID != 0
}

// NormalizedStatus returns the target status mapped onto the canonical set.
func (t Target) NormalizedStatus() Status {
	return NormalizeStatus(string(t.Status))
}

// TeamName returns the embedded team name, if any.
func (t Target) TeamName() string {
	if t.Team == nil {
		return ""
	}
	return t.Team.Name
}

// ParsedUpdatedAt returns the parsed UpdatedAt timestamp.
func (t Target) ParsedUpdatedAt() time.Time {
	return parseTime(t.UpdatedAt)
}

// Filters is the client-side target query. Empty fields are not sent.
type Filters struct {
	NumeroArt string `json:"numeroArt,omitempty"`
	TeamID    string `json:"teamId,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Empty reports whether no filter field is set.
func (f Filters) Empty() bool {
	return strings.TrimSpace(f.NumeroArt) == "" &&
		strings.TrimSpace(f.TeamID) == "" &&
		strings.TrimSpace(f.Status) == ""
}

// Query builds the /target query string from non-empty fields only.
func (f Filters) Query() url.Values {
	values := url.Values{}
	if v := strings.TrimSpace(f.NumeroArt); v != "" {
		values.Set("numeroArt", v)
	}
	if v := strings.TrimSpace(f.TeamID); v != "" {
		values.Set("teamId", v)
	}
	if v := strings.TrimSpace(f.Status); v != "" {
		values.Set("status", v)
	}
	return values
}

// Match applies the filters to a target locally. numeroArt is a substring
// match, teamId and status are exact (status after aliasing).
func (f Filters) Match(t Target) bool {
	if v := strings.TrimSpace(f.NumeroArt); v != "" && !strings.Contains(t.NumeroArt, v) {
		return false
	}
	if v := strings.TrimSpace(f.TeamID); v != "" {
		if !t.Assigned() || strconv.FormatInt(*t.TeamID, 10) != v {
			return false
		}
	}
	if v := strings.TrimSpace(f.Status); v != "" && t.NormalizedStatus() != NormalizeStatus(v) {
		return false
	}
	return true
}

func (f Filters) String() string {
	if f.Empty() {
		return "none"
	}
	return f.Query().Encode()
}

// UserResponse is the /user/:id payload, which the server returns either as
// a single object or as an array.
type UserResponse struct {
	Single     *User
	Collection []User
}

// UnmarshalJSON decodes either shape.
func (r *UserResponse) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*r = UserResponse{}
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '[':
		var users []User
		if err := json.Unmarshal(trimmed, &users); err != nil {
			return fmt.Errorf("decode user collection: %w", err)
		}
		r.Collection = users
		return nil
	case trimmed[0] == '{':
		var user User
		if err := json.Unmarshal(trimmed, &user); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		r.Single = &user
		return nil
	default:
		return fmt.Errorf("unexpected user payload starting with %q", trimmed[0])
	}
}

// Users resolves the union into a collection.
func (r UserResponse) Users() []User {
	if r.Single != nil {
		return []User{*r.Single}
	}
	if r.Collection == nil {
		return []User{}
	}
	out := make([]User, len(r.Collection))
	copy(out, r.Collection)
	return out
}

// LoginResponse mirrors POST /auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
}

// message extracts the server message, which may be a string or a list.
func (e errorBody) message() string {
	if len(e.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(e.Message, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
