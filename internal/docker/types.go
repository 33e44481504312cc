package docker

// CreateRequest describes a container to create
type CreateRequest struct {
	Image string            // Fully qualified reference, image:tag
	Name  string            // Optional, daemon picks one when empty
	Env   map[string]string // Container environment
	Ports []int             // TCP ports to publish on random host ports
}

// ContainerState is the inspected state of a created container
type ContainerState struct {
	ID      string
	Name    string      // Without the leading slash
	Running bool        // false once the container exited
	Ports   map[int]int // container port -> published host port (TCP only)
}
