package usecase

import (
	"fmt"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// displayNamer gives private repositories stable placeholder names for logs.
// Numbers are assigned in the order repositories are first named.
type displayNamer struct {
	assigned map[string]string
	next     int
}

func newDisplayNamer() *displayNamer {
	return &displayNamer{assigned: make(map[string]string)}
}

func (n *displayNamer) name(ref domain.RepositoryRef) string {
	if !ref.Private {
		return ref.FullName
	}
	if name, ok := n.assigned[ref.FullName]; ok {
		return name
	}
	n.next++
	name := fmt.Sprintf("[private-%d]", n.next)
	n.assigned[ref.FullName] = name
	return name
}
