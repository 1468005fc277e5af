package directory

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// computeStats folds the trainings of a department's members into weekly
// numbers. Only participant entries belonging to members count.
func computeStats(department string, members map[primitive.ObjectID]struct{}, trainings []trainingDoc, since time.Time) DepartmentStats {
	stats := DepartmentStats{Department: department}
	active := make(map[primitive.ObjectID]struct{})
	var ratingSum float64
	var ratings int

	for _, t := range trainings {
		involved := false
		for _, p := range t.Participants {
			if _, ok := members[p.User]; !ok {
				continue
			}
			involved = true

			switch p.Status {
			case ParticipantCompleted:
				if p.CompletionDate != nil && !p.CompletionDate.Before(since) {
					stats.CompletedTrainings++
				}
			case "confirmed", "in-progress":
				active[p.User] = struct{}{}
			}

			if p.Feedback != nil && p.Feedback.Rating > 0 &&
				p.Feedback.SubmittedAt != nil && !p.Feedback.SubmittedAt.Before(since) {
				ratingSum += p.Feedback.Rating
				ratings++
			}
		}
		if involved {
			stats.TotalTrainings++
		}
	}

	stats.ActiveParticipants = len(active)
	if ratings > 0 {
		stats.AverageRating = math.Round(ratingSum/float64(ratings)*10) / 10
	}
	return stats
}
