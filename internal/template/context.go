package template

// Context is the data a template is executed against.
type Context map[string]interface{}

// ServiceContext returns the base context of one service entry.
func ServiceContext(id, name, host string, port int) Context {
	return Context{
		"ID":   id,
		"Name": name,
		"Host": host,
		"Port": port,
	}
}

// With returns a copy of c with the keys of layer added. Keys already in c are
// overwritten; c itself is left unchanged.
func (c Context) With(layer map[string]interface{}) Context {
	out := make(Context, len(c)+len(layer))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range layer {
		out[k] = v
	}
	return out
}
