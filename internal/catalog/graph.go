package catalog

// FindCycle returns the first dependency cycle found among required
// dependencies, or nil. Self-references are reported separately by
// Problems and are skipped here.
func (c *Catalog) FindCycle() *CycleError {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(c.units))
	var stack []string

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		state[name] = inProgress
		stack = append(stack, name)

		for _, dep := range c.Dependencies(name) {
			if dep == name {
				continue
			}
			if _, ok := c.units[dep]; !ok {
				continue
			}
			switch state[dep] {
			case inProgress:
				return &CycleError{Path: cyclePath(stack, dep)}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range c.Names() {
		if state[name] != unvisited {
			continue
		}
		if cycle := visit(name); cycle != nil {
			return cycle
		}
	}
	return nil
}

// cyclePath extracts the cycle that closes on name from the DFS stack.
func cyclePath(stack []string, name string) []string {
	for i, s := range stack {
		if s == name {
			path := append([]string{}, stack[i:]...)
			return append(path, name)
		}
	}
	return []string{name, name}
}

// DependencyChain returns every unit that name depends on, directly or
// indirectly, in install order: each unit appears after its own
// dependencies and only once. Unknown names are skipped.
func (c *Catalog) DependencyChain(name string) []string {
	visited := make(map[string]bool)
	var chain []string
	c.buildChain(name, visited, &chain)
	return chain
}

func (c *Catalog) buildChain(name string, visited map[string]bool, chain *[]string) {
	// Avoid cycles
	if visited[name] {
		return
	}
	visited[name] = true

	for _, dep := range c.Dependencies(name) {
		if _, ok := c.units[dep]; !ok {
			continue
		}
		if !visited[dep] {
			c.buildChain(dep, visited, chain)
			*chain = append(*chain, dep)
		}
	}
}

// Dependents returns the units that list name as a required dependency,
// sorted by name.
func (c *Catalog) Dependents(name string) []string {
	var dependents []string
	for _, u := range c.Units() {
		for _, dep := range u.Dependencies {
			if dep == name {
				dependents = append(dependents, u.Name)
				break
			}
		}
	}
	return dependents
}
