// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrixtest is an in-process Matrix homeserver for tests. It
// keeps real room state (membership, aliases, state events, timeline)
// and serves the subset of the client-server API the messaging
// package calls, so tests exercise the production HTTP client rather
// than an interface fake.
//
// Access control is simplified: the caller must be joined to a room to
// read or write its state, and joins are allowed by invite, a public
// join rule, or membership in a room a restricted rule allows.
package matrixtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Message is a non-state event sent into a room.
type Message struct {
	RoomID  string
	EventID string
	Sender  string
	Type    string
	Content json.RawMessage
}

type room struct {
	id    string
	state map[string]json.RawMessage
	// order preserves insertion order of state keys for /state.
	order    []string
	messages []Message
}

func stateIndex(eventType, stateKey string) string {
	return eventType + "\x00" + stateKey
}

type timelineEntry struct {
	roomID string
	// invitee is set for invite notifications.
	invitee string
	event   map[string]any
}

type failure struct {
	method   string
	contains string
	status   int
	errcode  string
	times    int
}

// Homeserver is safe for concurrent use.
type Homeserver struct {
	ServerName string

	server *httptest.Server

	mu        sync.Mutex
	tokens    map[string]string
	rooms     map[string]*room
	aliases   map[string]string
	nextID    int
	timeline  []timelineEntry
	changed   chan struct{}
	failures  []*failure
	requests  []string
	startedAt time.Time
}

// New starts a homeserver for serverName, closed when the test ends.
func New(t testing.TB, serverName string) *Homeserver {
	t.Helper()
	homeserver := &Homeserver{
		ServerName: serverName,
		tokens:     make(map[string]string),
		rooms:      make(map[string]*room),
		aliases:    make(map[string]string),
		changed:    make(chan struct{}),
		startedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	homeserver.server = httptest.NewServer(homeserver)
	t.Cleanup(homeserver.server.Close)
	return homeserver
}

// URL is the homeserver base URL.
func (h *Homeserver) URL() string { return h.server.URL }

// AddUser registers an access token for userID.
func (h *Homeserver) AddUser(userID, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens[token] = userID
}

// Fail makes the next times requests whose method matches and whose
// path contains the substring fail with status and errcode.
func (h *Homeserver) Fail(method, pathContains string, status int, errcode string, times int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, &failure{method: method, contains: pathContains, status: status, errcode: errcode, times: times})
}

// ClearFailures drops all pending injected failures.
func (h *Homeserver) ClearFailures() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = nil
}

// Requests returns "METHOD path" for every request served so far.
func (h *Homeserver) Requests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.requests)
}

// CreateRoom makes a room owned by creator outside the API, for test
// setup. Extra state is given as type, state key, content triples.
func (h *Homeserver) CreateRoom(creator string, state ...StateEvent) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	created := h.newRoomLocked()
	h.setStateLocked(created, "m.room.create", "", map[string]any{"creator": creator})
	h.setStateLocked(created, "m.room.member", creator, map[string]any{"membership": "join"})
	for _, event := range state {
		h.setStateLocked(created, event.Type, event.StateKey, event.Content)
	}
	return created.id
}

// StateEvent is one state entry for CreateRoom.
type StateEvent struct {
	Type     string `json:"type"`
	StateKey string `json:"state_key"`
	Content  any    `json:"content"`
}

// SetState writes a state event directly.
func (h *Homeserver) SetState(roomID, eventType, stateKey string, content any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if target := h.rooms[roomID]; target != nil {
		h.setStateLocked(target, eventType, stateKey, content)
	}
}

// State reads a state event directly.
func (h *Homeserver) State(roomID, eventType, stateKey string) (json.RawMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	target := h.rooms[roomID]
	if target == nil {
		return nil, false
	}
	content, ok := target.state[stateIndex(eventType, stateKey)]
	return content, ok
}

// SetMembership writes an m.room.member event for userID.
func (h *Homeserver) SetMembership(roomID, userID, membership string) {
	h.SetState(roomID, "m.room.member", userID, map[string]any{"membership": membership})
}

// Membership returns userID's membership in roomID, or "".
func (h *Homeserver) Membership(roomID, userID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.membershipLocked(roomID, userID)
}

// SetAlias points alias at roomID.
func (h *Homeserver) SetAlias(alias, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aliases[alias] = roomID
}

// Alias resolves alias directly.
func (h *Homeserver) Alias(alias string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, ok := h.aliases[alias]
	return roomID, ok
}

// RoomCount counts rooms ever created.
func (h *Homeserver) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Messages returns the non-state events sent into roomID.
func (h *Homeserver) Messages(roomID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if target := h.rooms[roomID]; target != nil {
		return slices.Clone(target.messages)
	}
	return nil
}

// InjectMessage delivers an m.room.message from sender into roomID as
// if another client had sent it. It returns the event ID.
func (h *Homeserver) InjectMessage(roomID, sender string, content any) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	target := h.rooms[roomID]
	if target == nil {
		return ""
	}
	return h.appendMessageLocked(target, sender, "m.room.message", mustJSON(content))
}

// Invite invites userID to roomID on behalf of inviter, outside the API.
func (h *Homeserver) Invite(roomID, inviter, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if target := h.rooms[roomID]; target != nil {
		h.inviteLocked(target, inviter, userID)
	}
}

func (h *Homeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawPath := r.URL.RawPath
	if rawPath == "" {
		rawPath = r.URL.Path
	}

	h.mu.Lock()
	h.requests = append(h.requests, r.Method+" "+rawPath)
	for _, injected := range h.failures {
		if injected.times > 0 && injected.method == r.Method && strings.Contains(rawPath, injected.contains) {
			injected.times--
			h.mu.Unlock()
			writeError(w, injected.status, injected.errcode, "injected failure")
			return
		}
	}
	caller, authorized := h.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	h.mu.Unlock()

	const prefix = "/_matrix/client/v3/"
	if !strings.HasPrefix(rawPath, prefix) {
		http.NotFound(w, r)
		return
	}
	route := rawPath[len(prefix):]

	if route == "login" && r.Method == http.MethodPost {
		h.handleLogin(w, r)
		return
	}
	if !authorized {
		writeError(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "unknown access token")
		return
	}

	switch {
	case route == "account/whoami" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"user_id": caller})
	case route == "createRoom" && r.Method == http.MethodPost:
		h.handleCreateRoom(w, r, caller)
	case route == "joined_rooms" && r.Method == http.MethodGet:
		h.handleJoinedRooms(w, caller)
	case route == "sync" && r.Method == http.MethodGet:
		h.handleSync(w, r, caller)
	case strings.HasPrefix(route, "join/") && r.Method == http.MethodPost:
		h.handleJoin(w, caller, unescape(route[len("join/"):]))
	case strings.HasPrefix(route, "directory/room/"):
		h.handleDirectory(w, r, caller, unescape(route[len("directory/room/"):]))
	case strings.HasPrefix(route, "rooms/"):
		h.handleRoom(w, r, caller, route[len("rooms/"):])
	default:
		writeError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized endpoint "+route)
	}
}

func (h *Homeserver) handleLogin(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Identifier struct {
			User string `json:"user"`
		} `json:"identifier"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}
	userID := "@" + request.Identifier.User + ":" + h.ServerName
	h.mu.Lock()
	h.nextID++
	token := fmt.Sprintf("token_%d", h.nextID)
	h.tokens[token] = userID
	h.mu.Unlock()
	writeJSON(w, map[string]any{"user_id": userID, "access_token": token, "device_id": "TESTDEVICE"})
}

func (h *Homeserver) handleCreateRoom(w http.ResponseWriter, r *http.Request, caller string) {
	var request struct {
		Name            string         `json:"name"`
		Topic           string         `json:"topic"`
		AliasLocalpart  string         `json:"room_alias_name"`
		Invite          []string       `json:"invite"`
		CreationContent map[string]any `json:"creation_content"`
		InitialState    []StateEvent   `json:"initial_state"`
		PowerLevels     map[string]any `json:"power_level_content_override"`
		Preset          string         `json:"preset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	alias := ""
	if request.AliasLocalpart != "" {
		alias = "#" + request.AliasLocalpart + ":" + h.ServerName
		if _, taken := h.aliases[alias]; taken {
			writeError(w, http.StatusBadRequest, "M_ROOM_IN_USE", "room alias already taken")
			return
		}
	}

	created := h.newRoomLocked()
	createContent := map[string]any{"creator": caller}
	for key, value := range request.CreationContent {
		createContent[key] = value
	}
	h.setStateLocked(created, "m.room.create", "", createContent)
	h.setStateLocked(created, "m.room.member", caller, map[string]any{"membership": "join"})
	powerLevels := map[string]any{"users": map[string]any{caller: 100}}
	for key, value := range request.PowerLevels {
		powerLevels[key] = value
	}
	h.setStateLocked(created, "m.room.power_levels", "", powerLevels)
	joinRule := "invite"
	if request.Preset == "public_chat" {
		joinRule = "public"
	}
	h.setStateLocked(created, "m.room.join_rules", "", map[string]any{"join_rule": joinRule})
	if request.Name != "" {
		h.setStateLocked(created, "m.room.name", "", map[string]any{"name": request.Name})
	}
	if request.Topic != "" {
		h.setStateLocked(created, "m.room.topic", "", map[string]any{"topic": request.Topic})
	}
	for _, event := range request.InitialState {
		h.setStateLocked(created, event.Type, event.StateKey, event.Content)
	}
	if alias != "" {
		h.aliases[alias] = created.id
		h.setStateLocked(created, "m.room.canonical_alias", "", map[string]any{"alias": alias})
	}
	for _, invitee := range request.Invite {
		h.inviteLocked(created, caller, invitee)
	}
	writeJSON(w, map[string]any{"room_id": created.id})
}

func (h *Homeserver) handleJoinedRooms(w http.ResponseWriter, caller string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined := []string{}
	for roomID := range h.rooms {
		if h.membershipLocked(roomID, caller) == "join" {
			joined = append(joined, roomID)
		}
	}
	slices.Sort(joined)
	writeJSON(w, map[string]any{"joined_rooms": joined})
}

func (h *Homeserver) handleJoin(w http.ResponseWriter, caller, roomIDOrAlias string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID := roomIDOrAlias
	if strings.HasPrefix(roomIDOrAlias, "#") {
		resolved, ok := h.aliases[roomIDOrAlias]
		if !ok {
			writeError(w, http.StatusNotFound, "M_NOT_FOUND", "room alias not found")
			return
		}
		roomID = resolved
	}
	target := h.rooms[roomID]
	if target == nil {
		writeError(w, http.StatusNotFound, "M_NOT_FOUND", "no such room")
		return
	}
	if !h.mayJoinLocked(target, caller) {
		writeError(w, http.StatusForbidden, "M_FORBIDDEN", "you are not invited to this room")
		return
	}
	h.setMembershipLocked(target, caller, caller, "join")
	writeJSON(w, map[string]any{"room_id": roomID})
}

func (h *Homeserver) mayJoinLocked(target *room, userID string) bool {
	switch h.membershipLocked(target.id, userID) {
	case "join", "invite":
		return true
	case "ban":
		return false
	}
	var rules struct {
		JoinRule string `json:"join_rule"`
		Allow    []struct {
			RoomID string `json:"room_id"`
		} `json:"allow"`
	}
	_ = json.Unmarshal(target.state[stateIndex("m.room.join_rules", "")], &rules)
	switch rules.JoinRule {
	case "public":
		return true
	case "restricted":
		for _, allow := range rules.Allow {
			if h.membershipLocked(allow.RoomID, userID) == "join" {
				return true
			}
		}
	}
	return false
}

func (h *Homeserver) handleDirectory(w http.ResponseWriter, r *http.Request, caller, alias string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		roomID, ok := h.aliases[alias]
		if !ok {
			writeError(w, http.StatusNotFound, "M_NOT_FOUND", "room alias "+alias+" not found")
			return
		}
		writeJSON(w, map[string]any{"room_id": roomID, "servers": []string{h.ServerName}})
	case http.MethodPut:
		var request struct {
			RoomID string `json:"room_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
			return
		}
		if _, taken := h.aliases[alias]; taken {
			writeError(w, http.StatusConflict, "M_UNKNOWN", "room alias "+alias+" already exists")
			return
		}
		if h.rooms[request.RoomID] == nil {
			writeError(w, http.StatusNotFound, "M_NOT_FOUND", "no such room")
			return
		}
		h.aliases[alias] = request.RoomID
		writeJSON(w, map[string]any{})
	case http.MethodDelete:
		if _, ok := h.aliases[alias]; !ok {
			writeError(w, http.StatusNotFound, "M_NOT_FOUND", "room alias "+alias+" not found")
			return
		}
		delete(h.aliases, alias)
		writeJSON(w, map[string]any{})
	default:
		writeError(w, http.StatusMethodNotAllowed, "M_UNRECOGNIZED", "method not allowed")
	}
}

func (h *Homeserver) handleRoom(w http.ResponseWriter, r *http.Request, caller, rest string) {
	encodedRoom, action, _ := strings.Cut(rest, "/")
	roomID := unescape(encodedRoom)

	h.mu.Lock()
	defer h.mu.Unlock()
	target := h.rooms[roomID]
	if target == nil || h.membershipLocked(roomID, caller) != "join" {
		writeError(w, http.StatusForbidden, "M_FORBIDDEN", "user "+caller+" not in room "+roomID)
		return
	}

	switch {
	case action == "state" && r.Method == http.MethodGet:
		events := make([]map[string]any, 0, len(target.order))
		for _, index := range target.order {
			eventType, stateKey, _ := strings.Cut(index, "\x00")
			events = append(events, map[string]any{
				"type":      eventType,
				"state_key": stateKey,
				"sender":    caller,
				"event_id":  "$state-" + strconv.Itoa(len(events)),
				"content":   target.state[index],
			})
		}
		writeJSON(w, events)

	case strings.HasPrefix(action, "state/"):
		encodedType, encodedKey, _ := strings.Cut(action[len("state/"):], "/")
		eventType, stateKey := unescape(encodedType), unescape(encodedKey)
		switch r.Method {
		case http.MethodGet:
			content, ok := target.state[stateIndex(eventType, stateKey)]
			if !ok {
				writeError(w, http.StatusNotFound, "M_NOT_FOUND", "event not found")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(content)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			if !json.Valid(body) {
				writeError(w, http.StatusBadRequest, "M_NOT_JSON", "content is not JSON")
				return
			}
			h.setStateLocked(target, eventType, stateKey, json.RawMessage(body))
			writeJSON(w, map[string]any{"event_id": h.newEventIDLocked()})
		default:
			writeError(w, http.StatusMethodNotAllowed, "M_UNRECOGNIZED", "method not allowed")
		}

	case action == "members" && r.Method == http.MethodGet:
		chunk := []map[string]any{}
		for _, index := range target.order {
			eventType, stateKey, _ := strings.Cut(index, "\x00")
			if eventType != "m.room.member" {
				continue
			}
			chunk = append(chunk, map[string]any{
				"type":      eventType,
				"state_key": stateKey,
				"content":   target.state[index],
			})
		}
		writeJSON(w, map[string]any{"chunk": chunk})

	case action == "invite" && r.Method == http.MethodPost:
		var request struct {
			UserID string `json:"user_id"`
		}
		json.NewDecoder(r.Body).Decode(&request)
		switch h.membershipLocked(roomID, request.UserID) {
		case "join", "invite":
			writeError(w, http.StatusForbidden, "M_FORBIDDEN", request.UserID+" is already in the room")
			return
		}
		h.inviteLocked(target, caller, request.UserID)
		writeJSON(w, map[string]any{})

	case action == "kick" && r.Method == http.MethodPost:
		var request struct {
			UserID string `json:"user_id"`
			Reason string `json:"reason"`
		}
		json.NewDecoder(r.Body).Decode(&request)
		switch h.membershipLocked(roomID, request.UserID) {
		case "join", "invite":
		default:
			writeError(w, http.StatusForbidden, "M_FORBIDDEN", request.UserID+" is not in the room")
			return
		}
		h.setMembershipLocked(target, caller, request.UserID, "leave")
		writeJSON(w, map[string]any{})

	case action == "leave" && r.Method == http.MethodPost:
		h.setMembershipLocked(target, caller, caller, "leave")
		writeJSON(w, map[string]any{})

	case strings.HasPrefix(action, "send/") && r.Method == http.MethodPut:
		encodedType, _, _ := strings.Cut(action[len("send/"):], "/")
		body, _ := io.ReadAll(r.Body)
		eventID := h.appendMessageLocked(target, caller, unescape(encodedType), json.RawMessage(body))
		writeJSON(w, map[string]any{"event_id": eventID})

	default:
		writeError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized room endpoint "+action)
	}
}

// handleSync returns joined-room state on the initial sync and the
// timeline since the given batch afterwards. An incremental sync with
// nothing new waits for the requested timeout.
func (h *Homeserver) handleSync(w http.ResponseWriter, r *http.Request, caller string) {
	since := -1
	if value := r.URL.Query().Get("since"); value != "" {
		parsed, err := strconv.Atoi(strings.TrimPrefix(value, "b"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "M_INVALID_PARAM", "bad since token")
			return
		}
		since = parsed
	}
	timeout, _ := strconv.Atoi(r.URL.Query().Get("timeout"))

	h.mu.Lock()
	if since >= 0 && since >= len(h.timeline) && timeout > 0 {
		changed := h.changed
		h.mu.Unlock()
		select {
		case <-changed:
		case <-time.After(time.Duration(timeout) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		h.mu.Lock()
	}
	defer h.mu.Unlock()

	join := map[string]any{}
	invite := map[string]any{}
	if since < 0 {
		for roomID, target := range h.rooms {
			switch h.membershipLocked(roomID, caller) {
			case "join":
				var state []map[string]any
				for _, index := range target.order {
					eventType, stateKey, _ := strings.Cut(index, "\x00")
					state = append(state, map[string]any{
						"type": eventType, "state_key": stateKey, "content": target.state[index],
						"event_id": "$state", "sender": caller,
					})
				}
				join[roomID] = map[string]any{
					"state":    map[string]any{"events": state},
					"timeline": map[string]any{"events": []any{}},
				}
			case "invite":
				invite[roomID] = map[string]any{"invite_state": map[string]any{"events": []any{}}}
			}
		}
	} else {
		timelines := map[string][]map[string]any{}
		for _, entry := range h.timeline[min(since, len(h.timeline)):] {
			if entry.invitee != "" {
				if entry.invitee == caller && h.membershipLocked(entry.roomID, caller) == "invite" {
					invite[entry.roomID] = map[string]any{"invite_state": map[string]any{"events": []any{}}}
				}
				continue
			}
			if h.membershipLocked(entry.roomID, caller) == "join" {
				timelines[entry.roomID] = append(timelines[entry.roomID], entry.event)
			}
		}
		for roomID, events := range timelines {
			join[roomID] = map[string]any{
				"timeline": map[string]any{"events": events},
				"state":    map[string]any{"events": []any{}},
			}
		}
	}

	writeJSON(w, map[string]any{
		"next_batch": "b" + strconv.Itoa(len(h.timeline)),
		"rooms":      map[string]any{"join": join, "invite": invite},
	})
}

func (h *Homeserver) newRoomLocked() *room {
	h.nextID++
	created := &room{
		id:    fmt.Sprintf("!room%d:%s", h.nextID, h.ServerName),
		state: make(map[string]json.RawMessage),
	}
	h.rooms[created.id] = created
	return created
}

func (h *Homeserver) newEventIDLocked() string {
	h.nextID++
	return fmt.Sprintf("$event%d", h.nextID)
}

func (h *Homeserver) setStateLocked(target *room, eventType, stateKey string, content any) {
	index := stateIndex(eventType, stateKey)
	if _, exists := target.state[index]; !exists {
		target.order = append(target.order, index)
	}
	target.state[index] = mustJSON(content)
}

func (h *Homeserver) membershipLocked(roomID, userID string) string {
	target := h.rooms[roomID]
	if target == nil {
		return ""
	}
	var content struct {
		Membership string `json:"membership"`
	}
	_ = json.Unmarshal(target.state[stateIndex("m.room.member", userID)], &content)
	return content.Membership
}

func (h *Homeserver) setMembershipLocked(target *room, sender, userID, membership string) {
	h.setStateLocked(target, "m.room.member", userID, map[string]any{"membership": membership})
	h.publishLocked(timelineEntry{roomID: target.id, event: map[string]any{
		"event_id":         h.newEventIDLocked(),
		"type":             "m.room.member",
		"state_key":        userID,
		"sender":           sender,
		"origin_server_ts": h.timestampLocked(),
		"content":          map[string]any{"membership": membership},
	}})
}

func (h *Homeserver) inviteLocked(target *room, inviter, userID string) {
	h.setMembershipLocked(target, inviter, userID, "invite")
	h.publishLocked(timelineEntry{roomID: target.id, invitee: userID})
}

func (h *Homeserver) appendMessageLocked(target *room, sender, eventType string, content json.RawMessage) string {
	eventID := h.newEventIDLocked()
	target.messages = append(target.messages, Message{
		RoomID: target.id, EventID: eventID, Sender: sender, Type: eventType, Content: content,
	})
	h.publishLocked(timelineEntry{roomID: target.id, event: map[string]any{
		"event_id":         eventID,
		"type":             eventType,
		"sender":           sender,
		"origin_server_ts": h.timestampLocked(),
		"content":          content,
	}})
	return eventID
}

func (h *Homeserver) publishLocked(entry timelineEntry) {
	h.timeline = append(h.timeline, entry)
	close(h.changed)
	h.changed = make(chan struct{})
}

func (h *Homeserver) timestampLocked() int64 {
	return h.startedAt.Add(time.Duration(len(h.timeline)) * time.Second).UnixMilli()
}

func unescape(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}

func mustJSON(value any) json.RawMessage {
	if raw, ok := value.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(value)
	if err != nil {
		panic("matrixtest: marshal: " + err.Error())
	}
	return data
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, errcode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"errcode": errcode, "error": message})
}
