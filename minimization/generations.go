package minimization

// MemoryLimitConfiguration describes how a memory budget is split into
// cache generations.
type MemoryLimitConfiguration struct {
	MemoryLimit           int
	Generations           int
	MaxItemsPerGeneration int
}

// FindMemoryLimitConfiguration tries every generation count in [minGen,
// maxGen] and picks the one whose tables use most of memoryLimit.
func FindMemoryLimitConfiguration(memoryLimit uint64, minGen, maxGen int) MemoryLimitConfiguration {
	var best MemoryLimitConfiguration
	for generations := minGen; generations <= maxGen; generations++ {
		maxItems := hashSizeStepTable[len(hashSizeStepTable)-1]
		for step := initialHashSizeStep; step < len(hashSizeStepTable); step++ {
			slots := hashSizeStepTable[step] + min(hashSizeStepTable[step]>>2, MaxCookie)
			forecast := uint64(slots) * uint64(EntrySize) * uint64(generations)
			if memoryLimit < forecast {
				maxItems = hashSizeStepTable[step-1]
				break
			}
		}

		usage := (maxItems + maxItems>>2) * EntrySize * generations
		if usage > best.MemoryLimit {
			best = MemoryLimitConfiguration{
				MemoryLimit:           usage,
				Generations:           generations,
				MaxItemsPerGeneration: int(float64(maxItems) * loadFactor),
			}
		}
	}
	return best
}

// GenerationsCache approximates an LRU cache of PackedStates with a list of
// hash tables. New entries go to the current generation. When it is full
// it becomes an old generation and, once there are too many, the oldest one
// is recycled. Hits in old generations move to the current one.
type GenerationsCache struct {
	current           *Hash
	generations       []*Hash
	sizePerGeneration int
	maxGenerations    int
}

// NewGenerationsCache sizes the cache to fit memoryLimit.
func NewGenerationsCache(memoryLimit uint64) *GenerationsCache {
	config := FindMemoryLimitConfiguration(memoryLimit, 3, 6)
	return NewGenerationsCacheWithSize(config.MaxItemsPerGeneration, config.Generations)
}

func NewGenerationsCacheWithSize(sizePerGeneration, maxGenerations int) *GenerationsCache {
	return &GenerationsCache{
		current:           NewHash(),
		sizePerGeneration: sizePerGeneration,
		maxGenerations:    maxGenerations,
	}
}

func (c *GenerationsCache) Add(key PackedState) {
	if c.current.Len() >= c.sizePerGeneration {
		var next *Hash
		if len(c.generations)+1 >= c.maxGenerations && len(c.generations) > 0 {
			next = c.generations[0]
			next.Reset()
			c.generations = c.generations[1:]
		}
		c.generations = append(c.generations, c.current)
		if next == nil {
			next = NewHash()
		}
		c.current = next
	}
	c.current.Add(key)
}

// Get probes the current generation, then the older ones from newest to
// oldest.
func (c *GenerationsCache) Get(m Matcher) (PackedState, bool) {
	if e, ok := c.current.Get(m); ok {
		return e, true
	}
	for i := len(c.generations) - 1; i >= 0; i-- {
		if e, ok := c.generations[i].GetAndMove(m, c.current); ok {
			return e, true
		}
	}
	return PackedState{}, false
}

func (c *GenerationsCache) Clear() {
	c.current.Clear()
	c.generations = nil
}

// Generations returns the number of generations including the current one.
func (c *GenerationsCache) Generations() int {
	return len(c.generations) + 1
}

func (c *GenerationsCache) Len() int {
	n := c.current.Len()
	for _, g := range c.generations {
		n += g.Len()
	}
	return n
}

func (c *GenerationsCache) MemoryUsage() int {
	usage := c.current.MemoryUsage()
	for _, g := range c.generations {
		usage += g.MemoryUsage()
	}
	return usage
}
