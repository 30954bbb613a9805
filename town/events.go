package town

// Event types carried on the fan-out channel.
const (
	EventFull   = "full"
	EventName   = "name"
	EventDriver = "driver"
	EventEdit   = "edit"
	EventDelete = "delete"
	EventUsers  = "users"
	EventCursor = "cursor"
)

// Event is the tagged union broadcast to every subscriber. Only the fields
// relevant to Type are populated; everything else stays omitted on the wire.
type Event struct {
	Type string `json:"type"`

	// full
	Town *SceneState `json:"town,omitempty"`

	// name
	TownName string `json:"townName,omitempty"`

	// driver, edit, delete
	Category string  `json:"category,omitempty"`
	ID       string  `json:"id,omitempty"`
	Driver   *string `json:"driver,omitempty"`

	// edit
	Data    *SceneObject `json:"data,omitempty"`
	Changes []string     `json:"changes,omitempty"`

	// users; pointer so an empty roster still serializes as "users":[]
	// and clients can clear their list when the last user leaves
	Users *[]string `json:"users,omitempty"`

	// cursor (ephemeral, never persisted)
	Username       string   `json:"username,omitempty"`
	Position       *Vector3 `json:"position,omitempty"`
	CameraPosition *Vector3 `json:"camera_position,omitempty"`
}

// FullEvent wraps the current state into a full-sync event.
func FullEvent(state *SceneState) Event {
	return Event{Type: EventFull, Town: state}
}

// UsersEvent wraps an online roster into a users event.
func UsersEvent(users []string) Event {
	if users == nil {
		users = []string{}
	}
	return Event{Type: EventUsers, Users: &users}
}
