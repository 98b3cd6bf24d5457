package splitter

import "testing"

func Test_Split_CompoundInventoryAndContent(t *testing.T) {
	t.Parallel()

	compound, inventory, remainder := Split("what models do you have and what is 4wd lock")
	if !compound {
		t.Fatal("want compound=true")
	}
	if inventory != "what models do you have" {
		t.Errorf("inventory: got %q", inventory)
	}
	if remainder != "what is 4wd lock" {
		t.Errorf("remainder: got %q", remainder)
	}
}

func Test_Split_PureInventoryNoRemainder(t *testing.T) {
	t.Parallel()

	compound, inventory, remainder := Split("list manuals")
	if compound {
		t.Error("no remainder means not compound")
	}
	if inventory != "list manuals" || remainder != "" {
		t.Errorf("got inventory=%q remainder=%q", inventory, remainder)
	}
}

func Test_Split_ShortRemainderStaysPureInventory(t *testing.T) {
	t.Parallel()

	// The tail after "and" is under 5 characters: trailing filler.
	compound, inventory, remainder := Split("show all models and etc")
	if compound {
		t.Error("short remainder must not make the question compound")
	}
	if inventory != "show all models and etc" || remainder != "" {
		t.Errorf("got inventory=%q remainder=%q", inventory, remainder)
	}
}

func Test_Split_ContentQuestionPassesThrough(t *testing.T) {
	t.Parallel()

	q := "how do I reset the gmdss distress alert"
	compound, inventory, remainder := Split(q)
	if compound || inventory != "" || remainder != q {
		t.Errorf("content question altered: compound=%v inventory=%q remainder=%q",
			compound, inventory, remainder)
	}
}

func Test_Split_PagePatternsExcludeInventory(t *testing.T) {
	t.Parallel()

	// Page-specific questions must reach content retrieval even when they
	// contain the word "models".
	questions := []string{
		"what does page 12 say about models",
		"show the models table on page 3",
		"list models on p. 7",
		"what models are on page 4",
	}
	for _, q := range questions {
		compound, inventory, remainder := Split(q)
		if compound || inventory != "" || remainder != q {
			t.Errorf("%q routed to inventory: compound=%v inventory=%q", q, compound, inventory)
		}
	}
}

func Test_Split_ThenConjunction(t *testing.T) {
	t.Parallel()

	compound, inventory, remainder := Split("which manuals are available then explain the alarm panel")
	if !compound {
		t.Fatal("want compound=true")
	}
	if inventory != "which manuals are available" {
		t.Errorf("inventory: got %q", inventory)
	}
	if remainder != "explain the alarm panel" {
		t.Errorf("remainder: got %q", remainder)
	}
}

func Test_IsInventory_MisspellingsTolerated(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"what modles do you support",
		"list all modells",
	} {
		if !IsInventory(q) {
			t.Errorf("%q should be inventory-flavored", q)
		}
	}
}

func Test_IsInventory_IntentWithoutSubjectIsNot(t *testing.T) {
	t.Parallel()

	if IsInventory("what is the maximum output power") {
		t.Error("intent word without subject word must not be inventory")
	}
	if IsInventory("models") {
		t.Error("subject word without intent word must not be inventory")
	}
}

func Test_IsInventory_SubjectMatchedAsWholeWord(t *testing.T) {
	t.Parallel()

	// "remodeling" contains "model" only as a substring.
	if IsInventory("show all remodeling steps") {
		t.Error("substring subject hit must not count")
	}
}

func Test_Split_FirstConjunctionOnly(t *testing.T) {
	t.Parallel()

	compound, _, remainder := Split("what models do you have and explain winching and towing")
	if !compound {
		t.Fatal("want compound=true")
	}
	if remainder != "explain winching and towing" {
		t.Errorf("split must use the first conjunction only, remainder=%q", remainder)
	}
}

func Test_Split_EarliestConjunctionWins(t *testing.T) {
	t.Parallel()

	// "then" comes before "and": the split point is the earliest conjunction
	// in the text, not the first entry in the conjunction list.
	compound, inventory, remainder := Split("list all manuals then explain winching and towing")
	if !compound {
		t.Fatal("want compound=true")
	}
	if inventory != "list all manuals" {
		t.Errorf("inventory: got %q", inventory)
	}
	if remainder != "explain winching and towing" {
		t.Errorf("remainder: got %q", remainder)
	}
}
