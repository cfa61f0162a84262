package room

import "rtcsignal/internal/ids"

// AddMember declares a new Member on an already-running Room (Control API
// Create with a Room-level FID) and reconciles any Peer pairs its endpoints
// complete. Returns ErrAlreadyExists if the MemberId is already declared.
func (r *Room) AddMember(spec *MemberSpec) error {
	if _, exists := r.spec.Members[spec.ID]; exists {
		return newError(ErrKindTopologyViolation, "AddMember", ErrAlreadyExists)
	}
	r.spec.Members[spec.ID] = spec
	r.members[spec.ID] = &memberState{spec: spec}
	r.reconcile()
	return nil
}

// RemoveMember undeclares a Member (Control API Delete on a Member FID),
// tearing down every Peer pair that referenced one of its endpoints.
func (r *Room) RemoveMember(memberID ids.MemberId) {
	delete(r.spec.Members, memberID)
	delete(r.members, memberID)
	r.reconcile()
}

// AddEndpoint declares a new Endpoint under an existing Member (Control API
// Create with a Member-level FID) and reconciles.
func (r *Room) AddEndpoint(memberID ids.MemberId, spec *EndpointSpec) error {
	m, ok := r.spec.Members[memberID]
	if !ok {
		return newError(ErrKindTopologyViolation, "AddEndpoint", ErrMemberNotFound)
	}
	if _, exists := m.Endpoints[spec.ID]; exists {
		return newError(ErrKindTopologyViolation, "AddEndpoint", ErrAlreadyExists)
	}
	m.Endpoints[spec.ID] = spec
	if err := r.spec.Validate(); err != nil {
		delete(m.Endpoints, spec.ID)
		return err
	}
	r.reconcile()
	return nil
}

// RemoveEndpoint undeclares an Endpoint (Control API Delete on an Endpoint
// FID), tearing down the Peer pair it completed, if any.
func (r *Room) RemoveEndpoint(memberID ids.MemberId, endpointID ids.EndpointId) {
	m, ok := r.spec.Members[memberID]
	if !ok {
		return
	}
	delete(m.Endpoints, endpointID)
	r.reconcile()
}

// Spec returns the Room's current declared topology, for Control API Get.
func (r *Room) Spec() *Spec { return r.spec }
