package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Contact is the embedded primary-contact document on a company.
type Contact struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

// Company uses a string id field assigned at insert time; the Mongo _id is
// never exposed. Lookups accept either key (see idFilter).
type Company struct {
	OID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ID             string             `bson:"id" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Sector         string             `bson:"sector" json:"sector"`
	Industry       string             `bson:"industry,omitempty" json:"industry"`
	Size           string             `bson:"size,omitempty" json:"size"`
	PrimaryContact Contact            `bson:"primaryContact,omitempty" json:"primaryContact"`
	Location       string             `bson:"location,omitempty" json:"location"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type FundingProject struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description,omitempty" json:"description"`
	Sector        string             `bson:"sector" json:"sector"`
	FundingAmount float64            `bson:"fundingAmount" json:"fundingAmount"`
	Deadline      string             `bson:"deadline,omitempty" json:"deadline"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

type AnalysisCompany struct {
	Name   string `bson:"name" json:"name"`
	Sector string `bson:"sector,omitempty" json:"sector"`
}

type AnalysisProject struct {
	Name          string  `bson:"name,omitempty" json:"name"`
	FundingAmount float64 `bson:"fundingAmount,omitempty" json:"fundingAmount"`
}

// Analysis statuses form a closed set.
const (
	StatusCompleted   = "Completed"
	StatusInProgress  = "In Progress"
	StatusPending     = "Pending"
	StatusNeedsReview = "Needs Review"
)

var AnalysisStatuses = map[string]struct{}{
	StatusCompleted:   {},
	StatusInProgress:  {},
	StatusPending:     {},
	StatusNeedsReview: {},
}

type Analysis struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Company            AnalysisCompany    `bson:"company" json:"company"`
	Project            AnalysisProject    `bson:"project,omitempty" json:"project"`
	Date               string             `bson:"date,omitempty" json:"date"`
	Status             string             `bson:"status" json:"status"`
	Questions          QuestionsField     `bson:"questions,omitempty" json:"questions"`
	CompletedQuestions int                `bson:"completedQuestions,omitempty" json:"completedQuestions"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
}

type DocumentSection struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AnalysisID string             `bson:"analysisId" json:"analysisId"`
	Title      string             `bson:"title" json:"title"`
	Content    string             `bson:"content,omitempty" json:"content"`
	Order      int                `bson:"order,omitempty" json:"order"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// TeamMember uses a string id field, like Company.
type TeamMember struct {
	OID      primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ID       string             `bson:"id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email" json:"email"`
	Role     string             `bson:"role,omitempty" json:"role"`
	JoinedAt time.Time          `bson:"joinedAt" json:"joinedAt"`
}

type QuestionResponse struct {
	Question string `bson:"question" json:"question"`
	Response string `bson:"response,omitempty" json:"response"`
}

// QuestionsField carries either a bare question count or the full list of
// question responses. Both wire forms normalize through EffectiveCount; no
// other code inspects which form was stored.
type QuestionsField struct {
	count     int
	responses []QuestionResponse
	isList    bool
}

func QuestionsCount(n int) QuestionsField {
	return QuestionsField{count: n}
}

func QuestionsList(responses []QuestionResponse) QuestionsField {
	return QuestionsField{responses: responses, isList: true}
}

// EffectiveCount is the single normalization point for the two forms.
func (q QuestionsField) EffectiveCount() int {
	if q.isList {
		return len(q.responses)
	}
	return q.count
}

func (q QuestionsField) Responses() []QuestionResponse {
	return q.responses
}

func (q QuestionsField) MarshalJSON() ([]byte, error) {
	if q.isList {
		return json.Marshal(q.responses)
	}
	return json.Marshal(q.count)
}

func (q *QuestionsField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*q = QuestionsField{}
		return nil
	}
	if trimmed[0] == '[' {
		var responses []QuestionResponse
		if err := json.Unmarshal(trimmed, &responses); err != nil {
			return fmt.Errorf("questions list: %w", err)
		}
		*q = QuestionsField{responses: responses, isList: true}
		return nil
	}
	var count int
	if err := json.Unmarshal(trimmed, &count); err != nil {
		return fmt.Errorf("questions count: %w", err)
	}
	*q = QuestionsField{count: count}
	return nil
}

func (q QuestionsField) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if q.isList {
		return bson.MarshalValue(q.responses)
	}
	return bson.MarshalValue(int32(q.count))
}

func (q *QuestionsField) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Array:
		var responses []QuestionResponse
		if err := raw.Unmarshal(&responses); err != nil {
			return fmt.Errorf("questions list: %w", err)
		}
		*q = QuestionsField{responses: responses, isList: true}
	case bsontype.Int32:
		v, _ := raw.Int32OK()
		*q = QuestionsField{count: int(v)}
	case bsontype.Int64:
		v, _ := raw.Int64OK()
		*q = QuestionsField{count: int(v)}
	case bsontype.Double:
		v, _ := raw.DoubleOK()
		*q = QuestionsField{count: int(v)}
	case bsontype.Null:
		*q = QuestionsField{}
	default:
		return fmt.Errorf("questions: unsupported bson type %s", t)
	}
	return nil
}
