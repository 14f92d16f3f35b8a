package tiercache

// Async variants answer from memory inline and hand disk work to the disk tier's I/O worker.
// Every callback is invoked exactly once and may be nil.

func (c *Cache[V]) GetAsync(key string, scope Scope, fn func(V, bool)) {
	if scope.Memory() {
		if v, ok := c.memory.Get(key); ok {
			call2(fn, v, true)
			return
		}
	}
	if scope.Disk() {
		c.disk.GetAsync(key, fn)
		return
	}
	var zero V
	call2(fn, zero, false)
}

func (c *Cache[V]) ContainsAsync(key string, scope Scope, fn func(bool)) {
	if scope.Memory() && c.memory.Contains(key) {
		call(fn, true)
		return
	}
	if scope.Disk() {
		c.disk.ContainsAsync(key, fn)
		return
	}
	call(fn, false)
}

// SetAsync reports whether the value was stored in every selected tier.
func (c *Cache[V]) SetAsync(key string, value V, scope Scope, fn func(bool)) {
	if scope.Memory() {
		c.memory.Set(key, value)
	}
	if scope.Disk() {
		c.disk.SetAsync(key, value, fn)
		return
	}
	call(fn, scope.Memory())
}

func (c *Cache[V]) RemoveAsync(key string, scope Scope, fn func(string)) {
	if scope.Memory() {
		c.memory.Remove(key)
	}
	if scope.Disk() {
		c.disk.RemoveAsync(key, fn)
		return
	}
	call(fn, key)
}

func (c *Cache[V]) RemoveAllAsync(scope Scope, fn func(bool)) {
	if scope.Memory() {
		c.memory.RemoveAll()
	}
	if scope.Disk() {
		c.disk.RemoveAllAsync(fn)
		return
	}
	call(fn, scope.Memory())
}

func call[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

func call2[A, B any](fn func(A, B), a A, b B) {
	if fn != nil {
		fn(a, b)
	}
}
