package disk

// Async entry points run on the tier's I/O worker in submission order. Callbacks may be nil
// and are invoked on the worker goroutine. If the tier is closed the callback receives
// the failure result immediately.

func (c *Cache[V]) GetAsync(key string, fn func(V, bool)) {
	c.async(func() {
		v, ok := c.Get(key)
		if fn != nil {
			fn(v, ok)
		}
	}, func() {
		if fn != nil {
			var zero V
			fn(zero, false)
		}
	})
}

func (c *Cache[V]) ContainsAsync(key string, fn func(bool)) {
	c.async(func() {
		ok := c.Contains(key)
		if fn != nil {
			fn(ok)
		}
	}, func() {
		if fn != nil {
			fn(false)
		}
	})
}

func (c *Cache[V]) SetAsync(key string, value V, fn func(bool)) {
	c.async(func() {
		ok := c.Set(key, value)
		if fn != nil {
			fn(ok)
		}
	}, func() {
		if fn != nil {
			fn(false)
		}
	})
}

// RemoveAsync calls fn with the removed key once the removal is done.
func (c *Cache[V]) RemoveAsync(key string, fn func(string)) {
	c.async(func() {
		c.Remove(key)
		if fn != nil {
			fn(key)
		}
	}, func() {
		if fn != nil {
			fn(key)
		}
	})
}

func (c *Cache[V]) RemoveAllAsync(fn func(bool)) {
	c.async(func() {
		ok := c.RemoveAll()
		if fn != nil {
			fn(ok)
		}
	}, func() {
		if fn != nil {
			fn(false)
		}
	})
}

func (c *Cache[V]) TotalCountAsync(fn func(int64)) {
	c.async(func() {
		n := c.TotalCount()
		if fn != nil {
			fn(n)
		}
	}, func() {
		if fn != nil {
			fn(-1)
		}
	})
}

func (c *Cache[V]) TotalCostAsync(fn func(int64)) {
	c.async(func() {
		n := c.TotalCost()
		if fn != nil {
			fn(n)
		}
	}, func() {
		if fn != nil {
			fn(-1)
		}
	})
}

func (c *Cache[V]) async(job, rejected func()) {
	if !c.alive() || !c.io.Submit(job) {
		rejected()
	}
}
