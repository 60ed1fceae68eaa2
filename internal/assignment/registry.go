// Package assignment keeps the in-memory routing table from drivers and vehicles to the
// employees entitled to see a vehicle's position.
//
// The table is an immutable Snapshot published through an atomic pointer. Writers
// serialize on a mutex, build a new snapshot from the current one, and swap it in;
// readers never lock and always see either the state before or the state after a
// mutation.
package assignment

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"fleet-tracker/internal/fleet/domain"
)

var (
	// ErrDuplicateAssignment is returned when an employee is already assigned to the vehicle.
	ErrDuplicateAssignment = errors.New("assignment: employee already assigned to this vehicle")
	// ErrVehicleNotFound is returned when a mutation names a vehicle the registry does not hold.
	ErrVehicleNotFound = errors.New("assignment: vehicle not found")
	// ErrVehicleExists is returned by VehicleCreated for an id that is already registered.
	ErrVehicleExists = errors.New("assignment: vehicle already exists")
)

// Recipients is the set of viewers entitled to a vehicle's fixes.
type Recipients struct {
	EmployeeIDs        []domain.UserID
	IncludeSupervisory bool
}

type vehicleEntry struct {
	driver    domain.UserID
	hasDriver bool
	employees map[domain.UserID]struct{}
}

// Snapshot is one immutable version of the routing table. Never mutate a published snapshot.
type Snapshot struct {
	generation uint64
	vehicles   map[domain.VehicleID]*vehicleEntry
	byDriver   map[domain.UserID]domain.VehicleID
	byEmployee map[domain.UserID]domain.VehicleID
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		vehicles:   make(map[domain.VehicleID]*vehicleEntry),
		byDriver:   make(map[domain.UserID]domain.VehicleID),
		byEmployee: make(map[domain.UserID]domain.VehicleID),
	}
}

// NewSnapshot builds a snapshot from persisted vehicles. When the input violates the
// one-vehicle-per-driver or one-vehicle-per-employee rule, the vehicle with the higher
// id wins, matching the order the store lists them in.
func NewSnapshot(vehicles []*domain.Vehicle) *Snapshot {
	s := emptySnapshot()
	sorted := make([]*domain.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v != nil {
			sorted = append(sorted, v)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, v := range sorted {
		s.putVehicle(v.ID)
		if v.DriverID != nil {
			s.setDriver(v.ID, *v.DriverID)
		}
		for _, e := range v.AssignedEmployees {
			s.assignEmployee(v.ID, e)
		}
	}
	return s
}

// clone copies the maps and the entries so the copy can be mutated freely.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		generation: s.generation,
		vehicles:   make(map[domain.VehicleID]*vehicleEntry, len(s.vehicles)),
		byDriver:   make(map[domain.UserID]domain.VehicleID, len(s.byDriver)),
		byEmployee: make(map[domain.UserID]domain.VehicleID, len(s.byEmployee)),
	}
	for id, e := range s.vehicles {
		ce := &vehicleEntry{driver: e.driver, hasDriver: e.hasDriver, employees: make(map[domain.UserID]struct{}, len(e.employees))}
		for emp := range e.employees {
			ce.employees[emp] = struct{}{}
		}
		c.vehicles[id] = ce
	}
	for k, v := range s.byDriver {
		c.byDriver[k] = v
	}
	for k, v := range s.byEmployee {
		c.byEmployee[k] = v
	}
	return c
}

func (s *Snapshot) putVehicle(id domain.VehicleID) {
	s.vehicles[id] = &vehicleEntry{employees: make(map[domain.UserID]struct{})}
}

// setDriver makes driver the driver of id, detaching them from any other vehicle and
// detaching id's previous driver.
func (s *Snapshot) setDriver(id domain.VehicleID, driver domain.UserID) {
	s.clearDriver(id)
	if prev, ok := s.byDriver[driver]; ok && prev != id {
		if e := s.vehicles[prev]; e != nil {
			e.hasDriver = false
			e.driver = 0
		}
	}
	e := s.vehicles[id]
	e.driver = driver
	e.hasDriver = true
	s.byDriver[driver] = id
}

func (s *Snapshot) clearDriver(id domain.VehicleID) {
	e := s.vehicles[id]
	if e == nil || !e.hasDriver {
		return
	}
	if s.byDriver[e.driver] == id {
		delete(s.byDriver, e.driver)
	}
	e.hasDriver = false
	e.driver = 0
}

// assignEmployee moves employee onto id, removing them from any other vehicle.
func (s *Snapshot) assignEmployee(id domain.VehicleID, employee domain.UserID) {
	if prev, ok := s.byEmployee[employee]; ok && prev != id {
		if e := s.vehicles[prev]; e != nil {
			delete(e.employees, employee)
		}
	}
	s.vehicles[id].employees[employee] = struct{}{}
	s.byEmployee[employee] = id
}

func (s *Snapshot) deleteVehicle(id domain.VehicleID) {
	e := s.vehicles[id]
	if e == nil {
		return
	}
	s.clearDriver(id)
	for emp := range e.employees {
		if s.byEmployee[emp] == id {
			delete(s.byEmployee, emp)
		}
	}
	delete(s.vehicles, id)
}

// VehicleForDriver returns the vehicle driver currently drives.
func (s *Snapshot) VehicleForDriver(driver domain.UserID) (domain.VehicleID, bool) {
	id, ok := s.byDriver[driver]
	return id, ok
}

// Recipients returns the viewers entitled to id's fixes. Employee ids are sorted.
func (s *Snapshot) Recipients(id domain.VehicleID) (Recipients, bool) {
	e, ok := s.vehicles[id]
	if !ok {
		return Recipients{}, false
	}
	ids := make([]domain.UserID, 0, len(e.employees))
	for emp := range e.employees {
		ids = append(ids, emp)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Recipients{EmployeeIDs: ids, IncludeSupervisory: true}, true
}

// Len returns the number of vehicles in the snapshot.
func (s *Snapshot) Len() int { return len(s.vehicles) }

// Generation counts the mutations applied since the registry was created.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Registry is the concurrently readable routing table.
type Registry struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(emptySnapshot())
	return r
}

// Snapshot returns the current snapshot. Callers that need several lookups to agree
// with each other should read them all from one snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// ResolveVehicleForDriver returns the vehicle driver is assigned to, if any.
func (r *Registry) ResolveVehicleForDriver(driver domain.UserID) (domain.VehicleID, bool) {
	return r.current.Load().VehicleForDriver(driver)
}

// ResolveRecipients returns the viewers entitled to the vehicle's fixes.
// ok is false for unknown vehicles.
func (r *Registry) ResolveRecipients(id domain.VehicleID) (Recipients, bool) {
	return r.current.Load().Recipients(id)
}

// Apply applies m atomically. On error the published snapshot is unchanged.
func (r *Registry) Apply(m Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.current.Load().clone()
	if err := m.applyTo(next); err != nil {
		return err
	}
	next.generation++
	r.current.Store(next)
	return nil
}

// Replace publishes snap as the current table, e.g. after a cold-start load.
func (r *Registry) Replace(snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap.generation = r.current.Load().generation + 1
	r.current.Store(snap)
}

// replaceIfGeneration publishes snap only when no mutation landed since generation was read.
func (r *Registry) replaceIfGeneration(snap *Snapshot, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.current.Load()
	if cur.generation != generation {
		return false
	}
	snap.generation = generation + 1
	r.current.Store(snap)
	return true
}
