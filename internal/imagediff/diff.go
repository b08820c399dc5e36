// Package imagediff computes the image add/remove sets that converge the
// commerce catalog onto the gallery authored in a story.
package imagediff

// Result holds commerce image ids to attach and detach.
type Result struct {
	Add    []string
	Remove []string
}

// Empty reports whether applying r would be a no-op.
func (r Result) Empty() bool {
	return len(r.Add) == 0 && len(r.Remove) == 0
}

// Diff maps desiredURLs to ids through urlToID and compares them with
// currentIDs. URLs without a known id are skipped until the catalog has
// registered them. Add follows desired order, Remove follows current order.
func Diff(desiredURLs []string, urlToID map[string]string, currentIDs []string) Result {
	desired := make([]string, 0, len(desiredURLs))
	desiredSet := make(map[string]struct{}, len(desiredURLs))
	for _, u := range desiredURLs {
		id, ok := urlToID[u]
		if !ok || id == "" {
			continue
		}
		if _, dup := desiredSet[id]; dup {
			continue
		}
		desiredSet[id] = struct{}{}
		desired = append(desired, id)
	}

	currentSet := make(map[string]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		if id != "" {
			currentSet[id] = struct{}{}
		}
	}

	res := Result{Add: []string{}, Remove: []string{}}
	for _, id := range desired {
		if _, ok := currentSet[id]; !ok {
			res.Add = append(res.Add, id)
		}
	}
	seen := make(map[string]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := desiredSet[id]; !ok {
			res.Remove = append(res.Remove, id)
		}
	}
	return res
}

// CurrentImage is an image already attached to a commerce product.
type CurrentImage struct {
	ID  string
	URL string
}

// ProductPlan is the product-level convergence: ids to keep, URLs to
// register as new images and ids to drop.
type ProductPlan struct {
	Keep   []string
	New    []Image
	Remove []string
}

// PlanProduct compares the desired pool with the product's current images.
func PlanProduct(pool []Image, current []CurrentImage) ProductPlan {
	urlToID := URLToID(current)
	plan := ProductPlan{Keep: []string{}, New: []Image{}, Remove: []string{}}
	desiredURLs := make([]string, 0, len(pool))
	kept := make(map[string]struct{}, len(pool))
	for _, img := range pool {
		desiredURLs = append(desiredURLs, img.URL)
		id, ok := urlToID[img.URL]
		if !ok {
			plan.New = append(plan.New, img)
			continue
		}
		if _, dup := kept[id]; !dup {
			kept[id] = struct{}{}
			plan.Keep = append(plan.Keep, id)
		}
	}
	currentIDs := make([]string, 0, len(current))
	for _, c := range current {
		currentIDs = append(currentIDs, c.ID)
	}
	plan.Remove = Diff(desiredURLs, urlToID, currentIDs).Remove
	return plan
}

// URLToID indexes images by URL. The first id wins for duplicate URLs.
func URLToID(images []CurrentImage) map[string]string {
	out := make(map[string]string, len(images))
	for _, img := range images {
		if img.URL == "" || img.ID == "" {
			continue
		}
		if _, ok := out[img.URL]; !ok {
			out[img.URL] = img.ID
		}
	}
	return out
}
