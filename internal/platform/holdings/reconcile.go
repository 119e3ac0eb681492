package holdings

// Reconciler merges freshly flattened assets with the previous cache.
type Reconciler struct {
	key KeyFunc
}

// NewReconciler creates a Reconciler indexing assets by key. A nil key
// selects LegacyKey.
func NewReconciler(key KeyFunc) *Reconciler {
	if key == nil {
		key = LegacyKey
	}
	return &Reconciler{key: key}
}

// Key is the identity the reconciler indexes a by.
func (r *Reconciler) Key(a NormalizedAsset) string {
	return r.key(a)
}

// KeyFunc returns the key function in use.
func (r *Reconciler) KeyFunc() KeyFunc {
	return r.key
}

// Merge returns fresh with user annotations carried over from previous.
//
// API fields always come from fresh. Annotations are copied from the previous
// record with the same key when non-empty, otherwise defaulted from assetType
// and accountName. Assets missing from fresh are dropped. Merge is pure, never
// fails and is idempotent for an unchanged fresh list.
func (r *Reconciler) Merge(previous, fresh []NormalizedAsset) []NormalizedAsset {
	index := make(map[string]NormalizedAsset, len(previous))
	for _, p := range previous {
		index[r.key(p)] = p
	}

	merged := make([]NormalizedAsset, 0, len(fresh))
	for _, f := range fresh {
		m := f
		m.MyAssetType = string(f.AssetType)
		m.VirtualEnvelop = f.AccountName

		if p, ok := index[r.key(f)]; ok {
			if p.MyAssetType != "" {
				m.MyAssetType = p.MyAssetType
			}
			if p.VirtualEnvelop != "" {
				m.VirtualEnvelop = p.VirtualEnvelop
			}
		}
		merged = append(merged, m)
	}
	return merged
}

// Merge reconciles with the legacy key.
func Merge(previous, fresh []NormalizedAsset) []NormalizedAsset {
	return NewReconciler(LegacyKey).Merge(previous, fresh)
}

// Annotation is a user edit of one asset's annotation fields. Nil leaves a field unchanged.
type Annotation struct {
	MyAssetType    *string `json:"myAssetType,omitempty"`
	VirtualEnvelop *string `json:"virtual_envelop,omitempty"`
}

// Annotate applies an annotation to every asset matching key and reports how
// many were changed. The input slice is not modified.
func (r *Reconciler) Annotate(assets []NormalizedAsset, key string, note Annotation) ([]NormalizedAsset, int) {
	out := make([]NormalizedAsset, len(assets))
	copy(out, assets)

	n := 0
	for i := range out {
		if r.key(out[i]) != key {
			continue
		}
		if note.MyAssetType != nil {
			out[i].MyAssetType = *note.MyAssetType
		}
		if note.VirtualEnvelop != nil {
			out[i].VirtualEnvelop = *note.VirtualEnvelop
		}
		n++
	}
	return out, n
}
