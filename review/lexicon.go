package review

// Valences on the -4..4 scale. Curated for restaurant reviews; not a
// reproduction of any published lexicon.
var lexicon = map[string]float64{
	// positive
	"good": 1.9, "great": 3.1, "excellent": 3.2, "amazing": 2.8, "awesome": 3.1,
	"fantastic": 2.6, "wonderful": 2.7, "perfect": 2.7, "best": 3.2, "love": 3.2,
	"loved": 2.9, "loves": 2.7, "like": 1.5, "liked": 1.8, "enjoy": 2.2, "enjoyed": 2.3,
	"nice": 1.8, "delicious": 2.7, "tasty": 2.2, "yummy": 2.4, "fresh": 1.3,
	"flavorful": 2.1, "friendly": 2.2, "attentive": 1.9, "helpful": 1.9, "polite": 1.7,
	"welcoming": 2.0, "courteous": 1.9, "professional": 1.4, "knowledgeable": 1.6,
	"clean": 1.7, "spotless": 2.0, "tidy": 1.4, "neat": 1.6, "cozy": 1.9, "elegant": 2.1,
	"romantic": 1.9, "quick": 1.0, "fast": 1.0, "prompt": 1.1, "timely": 1.1,
	"generous": 2.3, "plenty": 1.2, "affordable": 1.6, "reasonable": 1.4, "worth": 1.5,
	"recommend": 1.5, "recommended": 1.7, "happy": 2.7, "pleasant": 2.3, "impressed": 2.1,
	"outstanding": 3.0, "superb": 3.1, "fabulous": 2.9, "incredible": 2.6, "beautiful": 2.9,
	"favorite": 2.0, "fun": 2.3, "glad": 2.0, "satisfied": 1.8, "comfortable": 1.5,
	"patient": 1.4, "competent": 1.3, "humble": 1.4, "gem": 2.2, "thank": 1.5, "thanks": 1.9,
	"solid": 1.3, "decent": 0.9, "fine": 0.8, "well": 1.1, "hot": 0.4, "sweet": 2.0,

	// negative
	"bad": -2.5, "terrible": -2.9, "horrible": -2.5, "awful": -2.0, "worst": -3.1,
	"poor": -2.1, "disappointing": -2.2, "disappointed": -2.1, "disappointment": -2.3,
	"hate": -2.7, "hated": -3.2, "gross": -2.1, "disgusting": -2.4, "nasty": -2.6,
	"bland": -1.2, "burnt": -1.6, "stale": -1.7, "cold": -0.7, "soggy": -1.5, "raw": -0.8,
	"bitter": -1.4, "salty": -0.9, "greasy": -1.4, "overcooked": -1.6, "undercooked": -1.8,
	"rude": -2.0, "unfriendly": -1.9, "ignored": -1.5, "arrogant": -2.2, "impatient": -1.2,
	"incompetent": -2.3, "ignorant": -1.9, "slow": -0.9, "late": -0.8, "rushed": -1.0,
	"dirty": -1.9, "filthy": -2.7, "messy": -1.5, "sticky": -1.0, "smelly": -1.7,
	"loud": -0.9, "noisy": -1.2, "crowded": -1.0, "cramped": -1.2, "empty": -0.8,
	"expensive": -0.9, "overpriced": -1.9, "skimpy": -1.4, "tiny": -0.6, "scanty": -1.2,
	"wrong": -2.1, "mistake": -1.6, "problem": -1.7, "annoying": -1.8, "angry": -2.3,
	"unacceptable": -2.0, "waste": -1.8, "never": -0.4, "avoid": -1.2, "sick": -2.0,
	"cheap": -0.2, "mediocre": -1.0, "meh": -0.8, "lacking": -1.2, "forgot": -1.3,
	"complain": -1.5, "complaint": -1.7, "sad": -2.1, "unfortunately": -1.6,
}

// Degree modifiers: +1 intensifies, -1 dampens.
var boosters = map[string]float64{
	"very": 1, "really": 1, "extremely": 1, "so": 1, "super": 1, "incredibly": 1,
	"absolutely": 1, "totally": 1, "truly": 1, "highly": 1, "especially": 1, "most": 1,
	"quite": 1, "completely": 1, "too": 1,
	"slightly": -1, "somewhat": -1, "barely": -1, "kinda": -1, "kind": -1,
	"sort": -1, "little": -1, "marginally": -1, "hardly": -1,
}

// Negators. "t" covers split contractions such as "don t" and "wasn t".
var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nothing": true, "nobody": true,
	"neither": true, "nor": true, "cannot": true, "without": true, "t": true,
	"dont": true, "didnt": true, "doesnt": true, "wasnt": true, "isnt": true,
	"wont": true, "arent": true, "werent": true, "couldnt": true, "wouldnt": true,
}
