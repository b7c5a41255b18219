package lease

import "sync"

// Registry is the directory of every server and client created against it,
// in creation order. The first registered server is the one clients use.
type Registry struct {
	mu      sync.RWMutex
	servers []*Server
	clients []*Client
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) addServer(s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, s)
}

func (r *Registry) addClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c)
}

// FirstServer returns the earliest registered server.
func (r *Registry) FirstServer() (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.servers) == 0 {
		return nil, false
	}
	return r.servers[0], true
}

func (r *Registry) Servers() []*Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Server(nil), r.servers...)
}

func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Client(nil), r.clients...)
}

// Server looks a server up by name. Names are not required to be unique;
// the first match wins.
func (r *Registry) Server(name string) (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) Client(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}
