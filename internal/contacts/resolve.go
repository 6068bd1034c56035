package contacts

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/kiko-beam/beamlink/internal/models"
)

// Resolve finds the contact best matching a free-text name. Matching stages,
// first hit wins, ties broken by stable list order:
//
//  1. exact case-insensitive match
//  2. case-insensitive prefix match
//  3. case-insensitive substring match, in either direction
//  4. per-word containment between query words and name words
func (s *Store) Resolve(query string) (models.Contact, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return models.Contact{}, ErrEmptyName
	}

	list, err := s.List()
	if err != nil {
		return models.Contact{}, err
	}

	type matcher func(name string) bool
	stages := []matcher{
		func(name string) bool { return name == q },
		func(name string) bool { return strings.HasPrefix(name, q) },
		func(name string) bool { return strings.Contains(name, q) || strings.Contains(q, name) },
		func(name string) bool { return wordsOverlap(name, q) },
	}

	for _, match := range stages {
		for _, c := range list {
			if match(strings.ToLower(c.Name)) {
				s.touch(c.Name)
				return c, nil
			}
		}
	}
	return models.Contact{}, ErrNotFound
}

func wordsOverlap(name, query string) bool {
	nameParts := strings.Fields(name)
	for _, qp := range strings.Fields(query) {
		for _, np := range nameParts {
			if strings.Contains(np, qp) || strings.Contains(qp, np) {
				return true
			}
		}
	}
	return false
}

const randChars = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateRoomID returns a room id unique with high probability and safe to
// embed as a URL path segment: beam_<unix-ms base36>_<random suffix>.
func GenerateRoomID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := make([]byte, 6)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(randChars))))
		suffix[i] = randChars[n.Int64()]
	}
	return fmt.Sprintf("beam_%s_%s", ts, suffix)
}

// generateSignature produces the decorative signature carried in link
// payloads.
func generateSignature() string {
	suffix := make([]byte, 10)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(randChars))))
		suffix[i] = randChars[n.Int64()]
	}
	return fmt.Sprintf("sig_%d_%s", time.Now().UnixMilli(), suffix)
}

// ShareLink creates (or reuses) a contact for name and returns the mobile
// entry link that auto-joins the contact's room.
func (s *Store) ShareLink(origin, name string) (string, models.Contact, error) {
	c, err := s.Get(name)
	if err != nil {
		if err != ErrNotFound {
			return "", models.Contact{}, err
		}
		c, err = s.Add(name, "", models.ContactQR)
		if err != nil {
			return "", models.Contact{}, err
		}
	}
	link := fmt.Sprintf("%s/teleport?room=%s", strings.TrimRight(origin, "/"), c.ID)
	return link, c, nil
}
