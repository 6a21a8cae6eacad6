package object

// cachedObject is a fully resolved object body.
type cachedObject struct {
	objType ObjectType
	data    []byte
}

// objectCache holds every object resolved by a Store. Entries are never
// evicted: objects are immutable, and the cache lives as long as the Store.
// It is not synchronized; a Store is used from one goroutine at a time.
type objectCache struct {
	objects map[ID]cachedObject
}

func newObjectCache() *objectCache {
	return &objectCache{objects: make(map[ID]cachedObject)}
}

func (c *objectCache) get(id ID) (cachedObject, bool) {
	obj, ok := c.objects[id]
	return obj, ok
}

func (c *objectCache) put(id ID, objType ObjectType, data []byte) {
	c.objects[id] = cachedObject{objType: objType, data: data}
}

func (c *objectCache) len() int {
	return len(c.objects)
}
