package keyvault

// wordList is the vocabulary recovery phrases are drawn from. Short,
// unambiguous English nouns and adjectives; order matters only for
// generation, never verification.
var wordList = []string{
	"acorn", "amber", "anchor", "apple", "arrow", "aspen", "autumn", "badge",
	"bamboo", "basil", "beacon", "birch", "bison", "bloom", "breeze", "brook",
	"butter", "canyon", "cedar", "cherry", "cliff", "clover", "cobalt", "coral",
	"cosmos", "cradle", "crane", "crystal", "dawn", "delta", "dew", "drift",
	"eagle", "ember", "fable", "falcon", "fern", "field", "flint", "forest",
	"fox", "frost", "garnet", "ginger", "glade", "granite", "grove", "harbor",
	"hazel", "heron", "hollow", "honey", "ivory", "jade", "juniper", "kestrel",
	"lagoon", "lantern", "larch", "lark", "lilac", "linden", "lotus", "lunar",
	"maple", "marble", "meadow", "mesa", "mint", "mist", "moss", "night",
	"north", "oak", "ocean", "olive", "onyx", "opal", "orchid", "osprey",
	"otter", "pearl", "pebble", "pine", "plume", "pond", "poppy", "prairie",
	"quartz", "quill", "raven", "reef", "ridge", "river", "robin", "rowan",
	"saffron", "sage", "salmon", "shadow", "shore", "silver", "sparrow", "spruce",
	"stone", "storm", "summit", "sunset", "swift", "tamarind", "thistle", "tide",
	"timber", "topaz", "trout", "tulip", "tundra", "valley", "velvet", "violet",
	"walnut", "wave", "willow", "winter", "wren", "yarrow", "zephyr", "zinnia",
}
