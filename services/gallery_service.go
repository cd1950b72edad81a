package services

import (
	"io"

	"github.com/camden-git/vidfaces/gallery"
	"github.com/camden-git/vidfaces/realtime"
)

// GalleryService wraps the known-faces store and announces changes.
type GalleryService struct {
	store  *gallery.Store
	events EventPublisher
}

func NewGalleryService(store *gallery.Store, events EventPublisher) *GalleryService {
	return &GalleryService{store: store, events: events}
}

// Add stores a reference image and returns the display name it is known by.
func (s *GalleryService) Add(name string, data io.Reader) (string, error) {
	display, err := s.store.Add(name, data)
	if err != nil {
		return "", err
	}
	s.changed("added", display)
	return display, nil
}

// Delete removes a known face. found is false when nothing was stored under name.
func (s *GalleryService) Delete(name string) (found bool, err error) {
	found, err = s.store.Delete(name)
	if found {
		s.changed("deleted", gallery.DisplayName(gallery.StorageKey(name)))
	}
	return found, err
}

func (s *GalleryService) List() ([]string, error) {
	return s.store.List()
}

// Reload rebuilds the index from disk.
func (s *GalleryService) Reload() (gallery.LoadResult, error) {
	res, err := s.store.LoadAll()
	if err == nil {
		s.changed("reloaded", "")
	}
	return res, err
}

func (s *GalleryService) changed(action, name string) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(realtime.Event{
		Type:  realtime.EventGalleryChanged,
		Name:  name,
		Extra: map[string]interface{}{"action": action, "count": s.store.Matcher().Len()},
	})
}
