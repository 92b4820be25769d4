package model

import "testing"

func TestStudentView(t *testing.T) {
	yes := true
	e := Exam{
		ExamMeta: ExamMeta{ID: "e1", Title: "Chemistry"},
		Items: []ExamItem{
			{ID: "q1", Type: ItemMCQ, Options: []Option{{Text: "a"}, {Text: "b", Correct: true}}},
			{ID: "q2", Type: ItemTrueFalse, AnswerKey: &yes},
			{ID: "q3", Type: ItemShortAnswer, ExpectedAnswer: "NaCl", Rubric: "exact formula"},
			{ID: "q4", Type: ItemMatching, Pairs: []MatchPair{
				{Left: "H2O", Right: "water"}, {Left: "NaCl", Right: "salt"}, {Left: "CO2", Right: "gas"},
			}},
		},
	}

	v := e.StudentView()
	for _, o := range v.Items[0].Options {
		if o.Correct {
			t.Errorf("option %q still marked correct", o.Text)
		}
	}
	if v.Items[1].AnswerKey != nil {
		t.Error("truefalse key not removed")
	}
	if v.Items[2].ExpectedAnswer != "" || v.Items[2].Rubric != "" {
		t.Error("short answer key or rubric not removed")
	}

	want := []MatchPair{{Left: "H2O", Right: "gas"}, {Left: "NaCl", Right: "salt"}, {Left: "CO2", Right: "water"}}
	for i, p := range v.Items[3].Pairs {
		if p != want[i] {
			t.Errorf("pair %d = %+v, want %+v", i, p, want[i])
		}
	}

	if !e.Items[0].Options[1].Correct || e.Items[1].AnswerKey == nil || e.Items[3].Pairs[0].Right != "water" {
		t.Error("StudentView modified the original exam")
	}
}
