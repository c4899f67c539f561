package daemon

import (
	"fmt"
	"strings"
)

// resolveOrder returns component names so that every component follows all
// of its dependencies. Ties keep registration order.
func resolveOrder(components []Component) ([]string, error) {
	byName := make(map[string]Component, len(components))
	for _, c := range components {
		byName[c.Name()] = c
	}
	for _, c := range components {
		for _, dep := range c.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("component %s depends on %s which is not registered", c.Name(), dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(components))
	order := make([]string, 0, len(components))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, p := range path {
				if p == name {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), name)
			return fmt.Errorf("circular dependency: %s", strings.Join(cycle, " -> "))
		}

		state[name] = visiting
		path = append(path, name)
		for _, dep := range byName[name].Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, c := range components {
		if err := visit(c.Name()); err != nil {
			return nil, err
		}
	}
	return order, nil
}
