package games

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"

	"fairplay-casino-backend/internal/fairness"
)

const (
	MurderMinPlayers = 3
	MurderMaxPlayers = 8
	MurderCountdown  = 300 * time.Second

	// a detective is only dealt once the roster reaches this size
	MurderDetectiveFrom = 4
)

type Role string

const (
	RoleNone      Role = ""
	RoleInnocent  Role = "innocent"
	RoleMurderer  Role = "murderer"
	RoleDetective Role = "detective"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

type Winner string

const (
	WinnerInnocents Winner = "innocents"
	WinnerMurderer  Winner = "murderer"
)

var (
	ErrNotInLobby    = errors.New("player is not in the lobby")
	ErrRoleForbidden = errors.New("player's role cannot perform this action")
	ErrLobbyFull     = errors.New("lobby is full")
)

type MurderPlayer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role,omitempty"`
	Alive bool   `json:"alive"`
}

// Seat is a roster entry as shown to a viewer. Role is never copied from the
// roster; Snapshot fills it in where the viewer may see it.
type Seat struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	Role  Role   `json:"role,omitempty" copier:"-"`
}

type MurderLobby struct {
	ID        string
	Host      int64
	Phase     Phase
	Players   []*MurderPlayer
	Countdown time.Duration
	StartedAt time.Time
	Winner    Winner
	Reason    string
}

type MurderResult struct {
	LobbyID string         `json:"lobby_id"`
	Winner  Winner         `json:"winner"`
	Reason  string         `json:"reason"`
	Players []MurderPlayer `json:"players"`
}

func (*MurderResult) Kind() Kind { return KindMurderMystery }
func (*MurderResult) isResult()  {}

// MurderView is the lobby as one player sees it. Other players' roles stay
// hidden until the round finishes.
type MurderView struct {
	ID         string         `json:"id"`
	Host       int64          `json:"host"`
	Phase      Phase          `json:"phase"`
	Players    []Seat         `json:"players"`
	MinPlayers int            `json:"min_players"`
	MaxPlayers int            `json:"max_players"`
	Remaining  float64        `json:"remaining_seconds,omitempty"`
	Winner     Winner         `json:"winner,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

func NewMurderLobby(id string, host int64, hostName string, countdown time.Duration) *MurderLobby {
	if countdown <= 0 {
		countdown = MurderCountdown
	}
	return &MurderLobby{
		ID:        id,
		Host:      host,
		Phase:     PhaseWaiting,
		Players:   []*MurderPlayer{{ID: host, Name: hostName, Alive: true}},
		Countdown: countdown,
	}
}

func (l *MurderLobby) player(id int64) *MurderPlayer {
	for _, p := range l.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (l *MurderLobby) Has(id int64) bool {
	return l.player(id) != nil
}

func (l *MurderLobby) Len() int {
	return len(l.Players)
}

func (l *MurderLobby) Empty() bool {
	return len(l.Players) == 0
}

func (l *MurderLobby) Full() bool {
	return len(l.Players) >= MurderMaxPlayers
}

func (l *MurderLobby) CanStart() bool {
	return l.Phase == PhaseWaiting && len(l.Players) >= MurderMinPlayers && len(l.Players) <= MurderMaxPlayers
}

// ReadyToStart reports why the lobby cannot be started, if it cannot.
func (l *MurderLobby) ReadyToStart() error {
	if l.Phase != PhaseWaiting {
		return ErrWrongPhase
	}
	if !l.CanStart() {
		return invalid("need between %d and %d players, have %d", MurderMinPlayers, MurderMaxPlayers, len(l.Players))
	}
	return nil
}

func (l *MurderLobby) Join(id int64, name string) error {
	if l.Phase != PhaseWaiting {
		return ErrWrongPhase
	}
	if l.Has(id) {
		return nil
	}
	if l.Full() {
		return ErrLobbyFull
	}
	l.Players = append(l.Players, &MurderPlayer{ID: id, Name: name, Alive: true})
	return nil
}

// Start deals the roles and opens the countdown. The deal is a Fisher-Yates
// shuffle of the roster driven by draw, so it can be replayed from the seeds.
func (l *MurderLobby) Start(now time.Time, draw fairness.DrawFn) error {
	if err := l.ReadyToStart(); err != nil {
		return err
	}

	n := len(l.Players)
	for i, idx := range DealOrder(n, draw) {
		p := l.Players[idx]
		p.Alive = true
		switch {
		case i == 0:
			p.Role = RoleMurderer
		case i == 1 && n >= MurderDetectiveFrom:
			p.Role = RoleDetective
		default:
			p.Role = RoleInnocent
		}
	}

	l.Phase = PhasePlaying
	l.StartedAt = now
	l.Winner = ""
	l.Reason = ""
	return nil
}

// DealOrder shuffles seat indexes 0..n-1 with Fisher-Yates, consuming one
// sub-draw per swap. The first seat is the murderer, the second the
// detective when there is one.
func DealOrder(n int, draw fairness.DrawFn) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i, k := n-1, 0; i > 0; i, k = i-1, k+1 {
		j := min(int(draw(k)*float64(i+1)), i)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func (l *MurderLobby) actor(id int64, role Role) (*MurderPlayer, error) {
	if l.Phase != PhasePlaying {
		return nil, ErrWrongPhase
	}
	p := l.player(id)
	if p == nil {
		return nil, ErrNotInLobby
	}
	if !p.Alive || p.Role != role {
		return nil, ErrRoleForbidden
	}
	return p, nil
}

func (l *MurderLobby) target(actor *MurderPlayer, id int64) (*MurderPlayer, error) {
	t := l.player(id)
	if t == nil {
		return nil, ErrNotInLobby
	}
	if t == actor {
		return nil, invalid("cannot target yourself")
	}
	if !t.Alive {
		return nil, invalid("player %d is already eliminated", id)
	}
	return t, nil
}

// Kill lets the murderer eliminate one living player.
func (l *MurderLobby) Kill(actorID, targetID int64) (*MurderResult, error) {
	murderer, err := l.actor(actorID, RoleMurderer)
	if err != nil {
		return nil, err
	}
	victim, err := l.target(murderer, targetID)
	if err != nil {
		return nil, err
	}
	if victim.Role == RoleMurderer {
		return nil, invalid("cannot eliminate another murderer")
	}

	victim.Alive = false
	return l.checkTerminal(), nil
}

// Accuse lets the detective name a suspect. A wrong guess costs the
// detective their life.
func (l *MurderLobby) Accuse(actorID, suspectID int64) (*MurderResult, error) {
	detective, err := l.actor(actorID, RoleDetective)
	if err != nil {
		return nil, err
	}
	suspect, err := l.target(detective, suspectID)
	if err != nil {
		return nil, err
	}

	if suspect.Role == RoleMurderer {
		suspect.Alive = false
		return l.finish(WinnerInnocents, "detective caught the murderer"), nil
	}
	detective.Alive = false
	return l.checkTerminal(), nil
}

// Leave removes a player. A playing lobby that drops under the minimum goes
// back to waiting with roles cleared.
func (l *MurderLobby) Leave(id int64) (*MurderResult, error) {
	idx := -1
	for i, p := range l.Players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotInLobby
	}
	l.Players = append(l.Players[:idx], l.Players[idx+1:]...)

	if l.Host == id && len(l.Players) > 0 {
		l.Host = l.Players[0].ID
	}

	if l.Phase != PhasePlaying {
		return nil, nil
	}
	if len(l.Players) < MurderMinPlayers {
		l.reset()
		return nil, nil
	}
	return l.checkTerminal(), nil
}

// Expire ends a playing round whose countdown has run out.
func (l *MurderLobby) Expire(now time.Time) *MurderResult {
	if l.Phase != PhasePlaying || l.Remaining(now) > 0 {
		return nil
	}
	return l.finish(WinnerInnocents, "time ran out")
}

func (l *MurderLobby) Deadline() time.Time {
	return l.StartedAt.Add(l.Countdown)
}

func (l *MurderLobby) Remaining(now time.Time) time.Duration {
	if l.Phase != PhasePlaying {
		return 0
	}
	return max(l.Deadline().Sub(now), 0)
}

func (l *MurderLobby) reset() {
	l.Phase = PhaseWaiting
	l.StartedAt = time.Time{}
	l.Winner = ""
	l.Reason = ""
	for _, p := range l.Players {
		p.Role = RoleNone
		p.Alive = true
	}
}

func (l *MurderLobby) checkTerminal() *MurderResult {
	murderers, others := 0, 0
	for _, p := range l.Players {
		if !p.Alive {
			continue
		}
		if p.Role == RoleMurderer {
			murderers++
		} else {
			others++
		}
	}

	switch {
	case murderers == 0:
		return l.finish(WinnerInnocents, "no murderer left alive")
	case others <= murderers:
		return l.finish(WinnerMurderer, "murderer outnumbers the survivors")
	default:
		return nil
	}
}

func (l *MurderLobby) finish(w Winner, reason string) *MurderResult {
	l.Phase = PhaseFinished
	l.Winner = w
	l.Reason = reason
	return l.Result()
}

// Result reports the finished round with every role disclosed. It is nil
// while the round is still open.
func (l *MurderLobby) Result() *MurderResult {
	if l.Phase != PhaseFinished {
		return nil
	}
	return &MurderResult{LobbyID: l.ID, Winner: l.Winner, Reason: l.Reason, Players: l.copyPlayers()}
}

func (l *MurderLobby) copyPlayers() []MurderPlayer {
	out := make([]MurderPlayer, len(l.Players))
	for i, p := range l.Players {
		out[i] = *p
	}
	return out
}

// Snapshot renders the lobby for viewer. A viewer always sees their own role
// and every role once the round is over.
func (l *MurderLobby) Snapshot(viewer int64, now time.Time) MurderView {
	seats := make([]Seat, 0, len(l.Players))
	if err := copier.Copy(&seats, l.Players); err != nil {
		panic(fmt.Sprintf("games: copy murder roster: %v", err))
	}
	for i, p := range l.Players {
		if p.ID == viewer || l.Phase == PhaseFinished {
			seats[i].Role = p.Role
		}
	}

	return MurderView{
		ID:         l.ID,
		Host:       l.Host,
		Phase:      l.Phase,
		MinPlayers: MurderMinPlayers,
		MaxPlayers: MurderMaxPlayers,
		Remaining:  l.Remaining(now).Seconds(),
		Winner:     l.Winner,
		Reason:     l.Reason,
		Players:    seats,
	}
}
