package domain

// Permission predicates are pure functions of (requester identity, target
// resource) and perform no I/O.

// IsUserOwner grants mutation of a user resource only to the matching identity.
func IsUserOwner(requesterID string, target User) bool {
	return requesterID != "" && requesterID == target.ID
}

// IsObjectOwner reports whether the requester is a member of the owner set.
// A single-owner resource is treated as a one-element set.
func IsObjectOwner(requesterID string, owners []User) bool {
	if requesterID == "" {
		return false
	}
	for _, owner := range owners {
		if owner.ID == requesterID {
			return true
		}
	}
	return false
}

// OwnedBy reports owner-set membership for a book.
func (b Book) OwnedBy(userID string) bool {
	return IsObjectOwner(userID, b.Owners)
}

// OwnedBy reports whether the review belongs to the user.
func (r Review) OwnedBy(userID string) bool {
	return IsObjectOwner(userID, []User{r.Owner})
}
