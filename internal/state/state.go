// Package state keeps the per-user conversation position and its payload.
// Nothing here survives a restart; handlers must cope with an unexpected Idle.
package state

import "sync"

type State int

const (
	Idle State = iota
	AwaitingPrompt
	AwaitingEditInstruction
	AwaitingImageUpload
	AwaitingImageToImageInstruction
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingPrompt:
		return "awaiting_prompt"
	case AwaitingEditInstruction:
		return "awaiting_edit_instruction"
	case AwaitingImageUpload:
		return "awaiting_image_upload"
	case AwaitingImageToImageInstruction:
		return "awaiting_img2img_instruction"
	default:
		return "unknown"
	}
}

// InGenerationFlow reports whether free text should be treated as an image request.
func (s State) InGenerationFlow() bool {
	return s != Idle
}

// Context is the payload attached to a user's state. Empty strings mean absent.
type Context struct {
	LastPrompt          string
	LastArtifactRef     string // Telegram file id of the last delivered image
	ArchiveRef          string // blob key of the same image, if archived
	PendingBaseImageRef string // Telegram file id of an uploaded source image
	ImageToImage        bool
}

// Patch describes a partial Context update. Nil fields are left untouched.
type Patch struct {
	LastPrompt          *string
	LastArtifactRef     *string
	ArchiveRef          *string
	PendingBaseImageRef *string
	ImageToImage        *bool
}

// Str and Bool build Patch fields inline.
func Str(v string) *string { return &v }
func Bool(v bool) *bool { return &v }

// Clear returns a pointer to the empty string, blanking a field.
func Clear() *string { return Str("") }

func (c *Context) apply(p Patch) {
	if p.LastPrompt != nil {
		c.LastPrompt = *p.LastPrompt
	}
	if p.LastArtifactRef != nil {
		c.LastArtifactRef = *p.LastArtifactRef
	}
	if p.ArchiveRef != nil {
		c.ArchiveRef = *p.ArchiveRef
	}
	if p.PendingBaseImageRef != nil {
		c.PendingBaseImageRef = *p.PendingBaseImageRef
	}
	if p.ImageToImage != nil {
		c.ImageToImage = *p.ImageToImage
	}
}

type record struct {
	state State
	ctx   Context
}

// Store holds one record per user. It is safe for concurrent use; callers
// serialize read-decide-write sequences per user with Locks.
type Store struct {
	mu      sync.RWMutex
	records map[int64]*record
}

func NewStore() *Store {
	return &Store{records: make(map[int64]*record)}
}

// Get returns the user's state and a copy of the context. Unknown users are Idle.
func (s *Store) Get(userID int64) (State, Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[userID]
	if !ok {
		return Idle, Context{}
	}
	return r.state, r.ctx
}

// Set replaces the state and merges patch into the existing context.
func (s *Store) Set(userID int64, st State, patch Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok {
		r = &record{}
		s.records[userID] = r
	}
	r.state = st
	r.ctx.apply(patch)
}
