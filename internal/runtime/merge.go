package runtime

import "github.com/aretw0/orderflow/pkg/domain"

// merge folds a backend context update into the session.
// Preferences overwrite by key; selected items are appended without duplicates.
func merge(s *domain.SessionContext, u domain.ContextUpdate) {
	if u.Intent != "" {
		s.Intent = u.Intent
	}
	if len(u.Preferences) > 0 && s.Preferences == nil {
		s.Preferences = make(map[string]string, len(u.Preferences))
	}
	for k, v := range u.Preferences {
		s.Preferences[k] = v
	}
	for _, id := range u.SelectedItems {
		if !contains(s.SelectedItems, id) {
			s.SelectedItems = append(s.SelectedItems, id)
		}
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
